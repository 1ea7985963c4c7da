package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/events"
	"github.com/spec-kit/visit-verification/internal/observability"
	"github.com/spec-kit/visit-verification/internal/ratelimit"
	"github.com/spec-kit/visit-verification/internal/repository"
	"github.com/spec-kit/visit-verification/internal/repository/memory"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type captureSender struct {
	mu         sync.Mutex
	deliveries []CodeDelivery
	fail       error
}

func (s *captureSender) Send(_ context.Context, d CodeDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return s.fail
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handler(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

// slowDirectory delays every lookup until ctx ends or delay passes.
type slowDirectory struct {
	delay time.Duration
	inner repository.MemberRepository
}

func (d slowDirectory) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d.delay):
		return d.inner.GetMember(ctx, id)
	}
}

type harness struct {
	store      *memory.Store
	members    *memory.MemberDirectory
	sender     *captureSender
	log        *eventLog
	metrics    *observability.Metrics
	cfg        config.VerificationConfig
	hasher     *CodeHasher
	codes      *CodeService
	visits     *VisitService
	claims     *ClaimService
	nextValues []string
}

func defaultVerificationConfig() config.VerificationConfig {
	return config.VerificationConfig{
		CodeLength:      6,
		CodeTTL:         5 * time.Minute,
		CodeSecret:      "test-secret",
		IssueLimit:      3,
		IssueWindow:     15 * time.Minute,
		AttemptsPerMin:  60,
		AttemptBurst:    60,
		UpstreamTimeout: 200 * time.Millisecond,
		RateLimitStore:  "memory",
	}
}

type harnessOption func(*harness, *CodeDependencies, *VisitDependencies)

func withMembers(repo repository.MemberRepository) harnessOption {
	return func(_ *harness, cd *CodeDependencies, vd *VisitDependencies) {
		cd.Members = repo
		vd.Members = repo
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewStore(),
		members: memory.NewMemberDirectory(
			domain.Member{ID: "SHA01", FullName: "Active Member", PhoneNumber: "+254700000001", Status: domain.MemberStatusActive},
			domain.Member{ID: "SHA02", FullName: "Other Member", Email: "other@example.com", Status: domain.MemberStatusActive},
			domain.Member{ID: "SHA-SUSP", Status: domain.MemberStatusSuspended},
		),
		sender:  &captureSender{},
		log:     &eventLog{},
		metrics: observability.NewMetrics(),
		cfg:     defaultVerificationConfig(),
	}
	h.hasher = NewCodeHasher(h.cfg.CodeSecret)

	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{
		events.EventCodeIssued, events.EventCodeRevoked, events.EventCodeConsumed, events.EventCodeExpired,
		events.EventVisitOpened, events.EventVisitClosed, events.EventVisitVoided,
		events.EventClaimSubmitted, events.EventClaimDecided,
	} {
		dispatcher.Subscribe(et, h.log.handler)
	}

	refs, err := NewReferenceGenerator(1)
	require.NoError(t, err)

	var mu sync.Mutex
	counter := 0
	generator := func(length int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(h.nextValues) > 0 {
			v := h.nextValues[0]
			h.nextValues = h.nextValues[1:]
			return v, nil
		}
		counter++
		return fmt.Sprintf("%0*d", length, counter), nil
	}

	cd := CodeDependencies{
		Store:      h.store,
		Members:    h.members,
		Limiter:    ratelimit.NewMemoryLimiter(h.cfg.IssueLimit, h.cfg.IssueWindow),
		Hasher:     h.hasher,
		Generator:  generator,
		Sender:     h.sender,
		Config:     h.cfg,
		Dispatcher: dispatcher,
		Metrics:    h.metrics,
		Logger:     zap.NewNop(),
	}
	vd := VisitDependencies{
		Store:      h.store,
		Members:    h.members,
		Ledger:     NewLedger(h.hasher),
		Throttle:   ratelimit.NewAttemptThrottle(h.cfg.AttemptsPerMin, h.cfg.AttemptBurst),
		References: refs,
		Config:     h.cfg,
		Dispatcher: dispatcher,
		Metrics:    h.metrics,
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h, &cd, &vd)
	}

	h.codes = NewCodeService(cd)
	h.visits = NewVisitService(vd)
	h.claims = NewClaimService(ClaimDependencies{
		Store:      h.store,
		References: refs,
		Dispatcher: dispatcher,
		Metrics:    h.metrics,
		Logger:     zap.NewNop(),
	})
	return h
}

func (h *harness) issue(t *testing.T, memberID string, at time.Time) *IssueResult {
	t.Helper()
	res, err := h.codes.Issue(context.Background(), IssueInput{MemberID: memberID, Purpose: domain.PurposeHospitalVisit}, at)
	require.NoError(t, err)
	return res
}

func (h *harness) authorize(memberID, value string, at time.Time) (*domain.Visit, error) {
	return h.visits.Authorize(context.Background(), AuthorizeInput{
		MemberID:   memberID,
		HospitalID: "HOSP-001",
		Code:       value,
	}, at)
}

func (h *harness) codeState(t *testing.T, id string) domain.CodeState {
	t.Helper()
	var state domain.CodeState
	require.NoError(t, h.store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		code, err := tx.Codes().GetByID(ctx, id)
		if err != nil {
			return err
		}
		state = code.State
		return nil
	}))
	return state
}

func (h *harness) closedVisit(t *testing.T, memberID string) *domain.Visit {
	t.Helper()
	res := h.issue(t, memberID, t0)
	visit, err := h.authorize(memberID, res.Value, t0.Add(time.Minute))
	require.NoError(t, err)
	visit, err = h.visits.Close(context.Background(), visit.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	return visit
}

var errDeliveryDown = errors.New("gateway down")
