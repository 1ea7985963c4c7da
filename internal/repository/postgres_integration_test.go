package repository_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/persistence"
	"github.com/spec-kit/visit-verification/internal/ratelimit"
	"github.com/spec-kit/visit-verification/internal/repository"
	"github.com/spec-kit/visit-verification/internal/repository/memory"
	"github.com/spec-kit/visit-verification/internal/service"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// newPostgresStore migrates a throwaway schema on POSTGRES_TEST_DSN and
// returns a store bound to it. The schema is dropped when the test ends.
func newPostgresStore(t *testing.T) *repository.PostgresStore {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		t.Skipf("postgres unavailable: %v", err)
	}

	schema := "vv_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 8
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(context.Background(), pool, zap.NewNop()))
	return repository.NewPostgresStore(pool)
}

type pgWorkflow struct {
	codes  *service.CodeService
	visits *service.VisitService
	claims *service.ClaimService
}

func newWorkflow(t *testing.T, store repository.Store) pgWorkflow {
	t.Helper()
	cfg := config.VerificationConfig{
		CodeLength:      6,
		CodeTTL:         5 * time.Minute,
		CodeSecret:      "integration-secret",
		IssueLimit:      100,
		IssueWindow:     time.Minute,
		AttemptsPerMin:  100,
		AttemptBurst:    100,
		UpstreamTimeout: time.Second,
		RateLimitStore:  "memory",
	}
	members := memory.NewMemberDirectory(
		domain.Member{ID: "SHA01", PhoneNumber: "+254700000001", Status: domain.MemberStatusActive},
	)
	hasher := service.NewCodeHasher(cfg.CodeSecret)
	refs, err := service.NewReferenceGenerator(7)
	require.NoError(t, err)

	return pgWorkflow{
		codes: service.NewCodeService(service.CodeDependencies{
			Store:   store,
			Members: members,
			Limiter: ratelimit.NewMemoryLimiter(cfg.IssueLimit, cfg.IssueWindow),
			Hasher:  hasher,
			Config:  cfg,
		}),
		visits: service.NewVisitService(service.VisitDependencies{
			Store:      store,
			Members:    members,
			Ledger:     service.NewLedger(hasher),
			References: refs,
			Config:     cfg,
		}),
		claims: service.NewClaimService(service.ClaimDependencies{Store: store, References: refs}),
	}
}

func issuedCode(memberID string, at time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Purpose:   domain.PurposeHospitalVisit,
		CodeHash:  uuid.NewString(),
		State:     domain.CodeStateIssued,
		IssuedAt:  at,
		ExpiresAt: at.Add(5 * time.Minute),
	}
}

func TestPostgres_ConcurrentAuthorizeExactlyOneWins(t *testing.T) {
	store := newPostgresStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := wf.codes.Issue(ctx, service.IssueInput{MemberID: "SHA01", Purpose: domain.PurposeHospitalVisit}, now)
	require.NoError(t, err)

	const callers = 12
	var wg sync.WaitGroup
	results := make(chan error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := wf.visits.Authorize(ctx, service.AuthorizeInput{
				MemberID:   "SHA01",
				HospitalID: "HOSP-001",
				Code:       issued.Value,
			}, now.Add(time.Second))
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, used int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrCodeAlreadyUsed):
			used++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, used)
}

func TestPostgres_OneIssuedCodePerPair(t *testing.T) {
	store := newPostgresStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := wf.codes.Issue(ctx, service.IssueInput{MemberID: "SHA01", Purpose: domain.PurposeHospitalVisit}, now)
	require.NoError(t, err)
	second, err := wf.codes.Issue(ctx, service.IssueInput{MemberID: "SHA01", Purpose: domain.PurposeHospitalVisit}, now.Add(time.Second))
	require.NoError(t, err)

	history, err := wf.codes.History(ctx, "SHA01", domain.PurposeHospitalVisit)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.Code.ID, history[0].ID)
	assert.Equal(t, domain.CodeStateRevoked, history[0].State)
	require.NotNil(t, history[0].RevokedAt)
	assert.Equal(t, second.Code.ID, history[1].ID)
	assert.Equal(t, domain.CodeStateIssued, history[1].State)

	// A second ISSUED row without revoking trips the partial unique index.
	err = store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Codes().Create(ctx, issuedCode("SHA01", now.Add(2*time.Second)))
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestPostgres_TransitionIsConditional(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	code := issuedCode("SHA02", now)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Codes().Create(ctx, code)
	}))

	transition := func() error {
		return store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.Lock(ctx, "test:"+code.ID); err != nil {
				return err
			}
			return tx.Codes().Transition(ctx, code.ID, domain.CodeStateIssued, domain.CodeStateConsumed, now)
		})
	}
	require.NoError(t, transition())
	assert.ErrorIs(t, transition(), repository.ErrConflict)

	var stored *domain.VerificationCode
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		stored, err = tx.Codes().GetByID(ctx, code.ID)
		return err
	}))
	assert.Equal(t, code.ID, stored.ID)
	assert.Equal(t, domain.CodeStateConsumed, stored.State)
	require.NotNil(t, stored.ConsumedAt)
}

func TestPostgres_RollbackDiscardsWrites(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	code := issuedCode("SHA03", time.Now().UTC())
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Codes().Create(ctx, code); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Codes().GetByID(ctx, code.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgres_OneActiveClaimPerVisit(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	code := issuedCode("SHA04", now)
	code.State = domain.CodeStateConsumed
	visit := &domain.Visit{
		ID:          uuid.NewString(),
		VisitNumber: "VIS-TEST-" + uuid.NewString(),
		MemberID:    "SHA04",
		HospitalID:  "HOSP-001",
		CodeID:      code.ID,
		VisitType:   domain.VisitTypeConsultation,
		State:       domain.VisitStateClosed,
		OpenedAt:    now,
	}
	newClaim := func() *domain.Claim {
		return &domain.Claim{
			ID:          uuid.NewString(),
			ClaimNumber: "CLM-TEST-" + uuid.NewString(),
			VisitID:     visit.ID,
			HospitalID:  visit.HospitalID,
			ClaimType:   domain.ClaimTypeConsultation,
			Amount:      500,
			State:       domain.ClaimStateSubmitted,
			SubmittedAt: &now,
		}
	}
	first := newClaim()
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Codes().Create(ctx, code); err != nil {
			return err
		}
		if err := tx.Visits().Create(ctx, visit); err != nil {
			return err
		}
		return tx.Claims().Create(ctx, first)
	}))

	// Bypassing HasActiveForVisit still cannot produce two active claims.
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Claims().Create(ctx, newClaim())
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		first.State = domain.ClaimStateRejected
		first.DecidedAt = &now
		first.RejectionReason = "duplicate billing"
		return tx.Claims().Transition(ctx, first, domain.ClaimStateSubmitted)
	}))
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		active, err := tx.Claims().HasActiveForVisit(ctx, visit.ID)
		if err != nil {
			return err
		}
		assert.False(t, active)
		return tx.Claims().Create(ctx, newClaim())
	}), "a rejected claim frees the visit")
}

func TestPostgres_MalformedIDsAreNotFound(t *testing.T) {
	store := newPostgresStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()

	_, err := wf.visits.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrVisitNotFound)

	_, err = wf.visits.Close(ctx, "not-a-uuid", time.Now().UTC())
	assert.ErrorIs(t, err, apperrors.ErrVisitNotFound)

	_, err = wf.claims.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrClaimNotFound)
}
