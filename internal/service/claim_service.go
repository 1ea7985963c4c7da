package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/events"
	"github.com/spec-kit/visit-verification/internal/observability"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// ClaimService links reimbursement claims to closed visits and records
// review decisions.
type ClaimService struct {
	store repository.Store
	refs  *ReferenceGenerator
	instruments
}

// ClaimDependencies bundles collaborators for the claim service.
type ClaimDependencies struct {
	Store      repository.Store
	References *ReferenceGenerator
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// SubmitInput describes a claim. HospitalID, when set, must match the
// hospital that ran the visit.
type SubmitInput struct {
	VisitID    string
	HospitalID string
	Amount     int64
	ClaimType  domain.ClaimType
}

// Decision is a reviewer's verdict on a submitted claim. ApprovedAmount
// defaults to the claimed amount.
type Decision struct {
	Outcome         domain.ClaimState
	ApprovedAmount  *int64
	ReviewerID      string
	Notes           string
	RejectionReason string
}

func NewClaimService(deps ClaimDependencies) *ClaimService {
	return &ClaimService{
		store:       deps.Store,
		refs:        deps.References,
		instruments: newInstruments(deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

// Submit files a claim against a CLOSED visit that has no other active claim.
func (s *ClaimService) Submit(ctx context.Context, in SubmitInput, now time.Time) (claim *domain.Claim, err error) {
	ctx, span := s.start(ctx, "claims.submit", attribute.String("visit_id", in.VisitID))
	defer func() { s.finish(span, "submit", err) }()

	if in.Amount <= 0 {
		return nil, apperrors.ErrInvalidAmount.WithDetails(map[string]any{"amount": in.Amount})
	}
	if in.ClaimType == "" {
		in.ClaimType = domain.ClaimTypeConsultation
	}
	if !in.ClaimType.Valid() {
		return nil, apperrors.NewValidationError("unknown claim type", map[string]any{"claim_type": in.ClaimType})
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, visitLockKey(in.VisitID)); err != nil {
			return err
		}
		visit, err := tx.Visits().GetByID(ctx, in.VisitID)
		if err != nil {
			return visitLookupError(err, in.VisitID)
		}
		if in.HospitalID != "" && visit.HospitalID != in.HospitalID {
			return apperrors.NewForbidden("visit belongs to another hospital")
		}
		if visit.State != domain.VisitStateClosed {
			return apperrors.ErrVisitNotClosed.WithDetails(map[string]any{"state": visit.State})
		}
		active, err := tx.Claims().HasActiveForVisit(ctx, visit.ID)
		if err != nil {
			return err
		}
		if active {
			return apperrors.ErrDuplicateClaim.WithDetails(map[string]any{"visit_id": visit.ID})
		}

		claim = &domain.Claim{
			ID:          uuid.NewString(),
			ClaimNumber: s.refs.Claim(now),
			VisitID:     visit.ID,
			HospitalID:  visit.HospitalID,
			ClaimType:   in.ClaimType,
			Amount:      in.Amount,
			State:       domain.ClaimStateSubmitted,
			SubmittedAt: &now,
		}
		if err := tx.Claims().Create(ctx, claim); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.ErrDuplicateClaim.Wrap(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:        events.EventClaimSubmitted,
		AggregateID: claim.ID,
		Timestamp:   now,
		Payload: events.ClaimSubmittedPayload{
			ClaimNumber: claim.ClaimNumber,
			VisitID:     claim.VisitID,
			HospitalID:  claim.HospitalID,
			ClaimType:   claim.ClaimType,
			Amount:      claim.Amount,
		},
	})
	return claim, nil
}

// Decide approves or rejects a SUBMITTED claim.
func (s *ClaimService) Decide(ctx context.Context, claimID string, d Decision, now time.Time) (claim *domain.Claim, err error) {
	ctx, span := s.start(ctx, "claims.decide",
		attribute.String("claim_id", claimID),
		attribute.String("outcome", string(d.Outcome)),
	)
	defer func() { s.finish(span, "decide", err) }()

	if !d.Outcome.IsOutcome() {
		return nil, apperrors.NewValidationError("outcome must be APPROVED or REJECTED", map[string]any{"outcome": d.Outcome})
	}

	var memberID string
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, claimLockKey(claimID)); err != nil {
			return err
		}
		current, err := tx.Claims().GetByID(ctx, claimID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ErrClaimNotFound.WithDetails(map[string]any{"claim_id": claimID})
			}
			return err
		}
		if !current.State.CanTransitionTo(d.Outcome) {
			return apperrors.ErrInvalidClaimState.WithDetails(map[string]any{"state": current.State})
		}

		current.State = d.Outcome
		current.DecidedAt = &now
		current.ReviewNotes = strings.TrimSpace(d.Notes)
		if d.ReviewerID != "" {
			reviewer := d.ReviewerID
			current.ReviewerID = &reviewer
		}
		if d.Outcome == domain.ClaimStateApproved {
			approved := current.Amount
			if d.ApprovedAmount != nil {
				approved = *d.ApprovedAmount
			}
			if approved <= 0 || approved > current.Amount {
				return apperrors.ErrInvalidAmount.WithDetails(map[string]any{
					"approved_amount": approved,
					"claimed_amount":  current.Amount,
				})
			}
			current.ApprovedAmount = &approved
		} else {
			current.RejectionReason = strings.TrimSpace(d.RejectionReason)
			if current.RejectionReason == "" {
				return apperrors.NewValidationError("rejection_reason is required", nil)
			}
		}

		if err := tx.Claims().Transition(ctx, current, domain.ClaimStateSubmitted); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.ErrInvalidClaimState.Wrap(err)
			}
			return err
		}
		if visit, err := tx.Visits().GetByID(ctx, current.VisitID); err == nil {
			memberID = visit.MemberID
		}
		claim = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:        events.EventClaimDecided,
		AggregateID: claim.ID,
		MemberID:    memberID,
		Timestamp:   now,
		Payload: events.ClaimDecidedPayload{
			ClaimNumber:     claim.ClaimNumber,
			HospitalID:      claim.HospitalID,
			Outcome:         claim.State,
			ApprovedAmount:  claim.ApprovedAmount,
			ReviewerID:      claim.ReviewerID,
			RejectionReason: claim.RejectionReason,
		},
	})
	return claim, nil
}

// Get returns a claim by id.
func (s *ClaimService) Get(ctx context.Context, claimID string) (*domain.Claim, error) {
	var claim *domain.Claim
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		claim, err = tx.Claims().GetByID(ctx, claimID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrClaimNotFound.WithDetails(map[string]any{"claim_id": claimID})
		}
		return err
	})
	return claim, err
}
