package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/events"
	"github.com/spec-kit/visit-verification/internal/observability"
	"github.com/spec-kit/visit-verification/internal/ratelimit"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// VisitService opens visits against consumed codes and moves them through
// their lifecycle.
type VisitService struct {
	store    repository.Store
	members  memberGate
	ledger   *Ledger
	throttle *ratelimit.AttemptThrottle
	refs     *ReferenceGenerator
	instruments
}

// VisitDependencies bundles collaborators for the visit service.
type VisitDependencies struct {
	Store      repository.Store
	Members    repository.MemberRepository
	Ledger     *Ledger
	Throttle   *ratelimit.AttemptThrottle
	References *ReferenceGenerator
	Config     config.VerificationConfig
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// AuthorizeInput is what a hospital presents at reception.
type AuthorizeInput struct {
	MemberID       string
	HospitalID     string
	Code           string
	VisitType      domain.VisitType
	ChiefComplaint string
}

func NewVisitService(deps VisitDependencies) *VisitService {
	return &VisitService{
		store:       deps.Store,
		members:     memberGate{members: deps.Members, timeout: deps.Config.UpstreamTimeout},
		ledger:      deps.Ledger,
		throttle:    deps.Throttle,
		refs:        deps.References,
		instruments: newInstruments(deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

// Authorize consumes the member's HOSPITAL_VISIT code and opens a visit in
// one transaction. Ledger errors are returned unchanged.
func (s *VisitService) Authorize(ctx context.Context, in AuthorizeInput, now time.Time) (visit *domain.Visit, err error) {
	ctx, span := s.start(ctx, "visits.authorize",
		attribute.String("member_id", in.MemberID),
		attribute.String("hospital_id", in.HospitalID),
	)
	defer func() { s.finish(span, "authorize", err) }()

	if in.VisitType == "" {
		in.VisitType = domain.VisitTypeConsultation
	}
	if !in.VisitType.Valid() {
		return nil, apperrors.NewValidationError("unknown visit type", map[string]any{"visit_type": in.VisitType})
	}
	if in.MemberID == "" || in.HospitalID == "" {
		return nil, apperrors.NewValidationError("member_id and hospital_id are required", nil)
	}
	if s.throttle != nil && !s.throttle.Allow(in.MemberID, now) {
		return nil, apperrors.ErrRateLimited.WithDetails(map[string]any{"member_id": in.MemberID})
	}

	if _, err := s.members.requireActive(ctx, in.MemberID); err != nil {
		return nil, err
	}

	visit = &domain.Visit{
		ID:             uuid.NewString(),
		VisitNumber:    s.refs.Visit(now),
		MemberID:       in.MemberID,
		HospitalID:     in.HospitalID,
		VisitType:      in.VisitType,
		ChiefComplaint: strings.TrimSpace(in.ChiefComplaint),
		State:          domain.VisitStateOpen,
		OpenedAt:       now,
	}

	var consumed, expired *domain.VerificationCode
	var rejected error
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		code, err := s.ledger.Consume(ctx, tx, ConsumeInput{
			MemberID: in.MemberID,
			Value:    in.Code,
			Purpose:  domain.PurposeHospitalVisit,
		}, now)
		if err != nil {
			if code != nil && errors.Is(err, apperrors.ErrCodeExpired) {
				expired, rejected = code, err
				return nil
			}
			return err
		}
		consumed = code
		visit.CodeID = code.ID
		if err := tx.Visits().Create(ctx, visit); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.ErrCodeAlreadyUsed.Wrap(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.publish(ctx, events.Event{
			Type:        events.EventCodeExpired,
			AggregateID: expired.ID,
			MemberID:    expired.MemberID,
			Timestamp:   now,
			Payload:     events.CodeExpiredPayload{Purpose: expired.Purpose, ExpiresAt: expired.ExpiresAt},
		})
		return nil, rejected
	}

	s.publish(ctx, events.Event{
		Type:        events.EventCodeConsumed,
		AggregateID: consumed.ID,
		MemberID:    consumed.MemberID,
		Timestamp:   now,
		Payload: events.CodeConsumedPayload{
			Purpose:    consumed.Purpose,
			HospitalID: visit.HospitalID,
			VisitID:    visit.ID,
		},
	})
	s.publish(ctx, events.Event{
		Type:        events.EventVisitOpened,
		AggregateID: visit.ID,
		MemberID:    visit.MemberID,
		Timestamp:   now,
		Payload: events.VisitOpenedPayload{
			VisitNumber: visit.VisitNumber,
			HospitalID:  visit.HospitalID,
			CodeID:      visit.CodeID,
			VisitType:   visit.VisitType,
		},
	})
	return visit, nil
}

// Close marks an OPEN visit as CLOSED.
func (s *VisitService) Close(ctx context.Context, visitID string, now time.Time) (*domain.Visit, error) {
	return s.transition(ctx, "close", visitID, domain.VisitStateClosed, func(v *domain.Visit) {
		v.ClosedAt = &now
	}, now)
}

// Void cancels an OPEN visit. The reason is required.
func (s *VisitService) Void(ctx context.Context, visitID, reason string, now time.Time) (*domain.Visit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("void reason is required", nil)
	}
	return s.transition(ctx, "void", visitID, domain.VisitStateVoided, func(v *domain.Visit) {
		v.VoidedAt = &now
		v.VoidReason = reason
	}, now)
}

func (s *VisitService) transition(ctx context.Context, operation, visitID string, next domain.VisitState, apply func(*domain.Visit), now time.Time) (visit *domain.Visit, err error) {
	ctx, span := s.start(ctx, "visits."+operation, attribute.String("visit_id", visitID))
	defer func() { s.finish(span, operation, err) }()

	var previous domain.VisitState
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, visitLockKey(visitID)); err != nil {
			return err
		}
		current, err := tx.Visits().GetByID(ctx, visitID)
		if err != nil {
			return visitLookupError(err, visitID)
		}
		if !current.State.CanTransitionTo(next) {
			return apperrors.ErrInvalidVisitState.WithDetails(map[string]any{
				"state":  current.State,
				"target": next,
			})
		}
		previous = current.State
		current.State = next
		apply(current)
		if err := tx.Visits().Transition(ctx, current, previous); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.ErrInvalidVisitState.Wrap(err)
			}
			return err
		}
		visit = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := events.EventVisitClosed
	if next == domain.VisitStateVoided {
		eventType = events.EventVisitVoided
	}
	s.publish(ctx, events.Event{
		Type:        eventType,
		AggregateID: visit.ID,
		MemberID:    visit.MemberID,
		Timestamp:   now,
		Payload: events.VisitStatusChangedPayload{
			OldState: previous,
			NewState: visit.State,
			Reason:   visit.VoidReason,
		},
	})
	return visit, nil
}

// Get returns a visit by id.
func (s *VisitService) Get(ctx context.Context, visitID string) (*domain.Visit, error) {
	var visit *domain.Visit
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		visit, err = tx.Visits().GetByID(ctx, visitID)
		if err != nil {
			return visitLookupError(err, visitID)
		}
		return nil
	})
	return visit, err
}

func visitLookupError(err error, visitID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.ErrVisitNotFound.WithDetails(map[string]any{"visit_id": visitID})
	}
	return err
}
