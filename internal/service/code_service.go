package service

import (
	"context"
	"errors"
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

// CodeService issues verification codes.
type CodeService struct {
	store    repository.Store
	members  memberGate
	limiter  ratelimit.Limiter
	hasher   *CodeHasher
	generate ValueGenerator
	sender   CodeSender
	cfg      config.VerificationConfig
	instruments
}

// CodeDependencies bundles collaborators for the code service.
type CodeDependencies struct {
	Store      repository.Store
	Members    repository.MemberRepository
	Limiter    ratelimit.Limiter
	Hasher     *CodeHasher
	Generator  ValueGenerator
	Sender     CodeSender
	Config     config.VerificationConfig
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// IssueInput describes an issuance request.
type IssueInput struct {
	MemberID string
	Purpose  domain.CodePurpose
}

// IssueResult carries the stored code and its plaintext, which is never
// persisted. DeliveryWarning is set when the sender failed.
type IssueResult struct {
	Code            *domain.VerificationCode
	Value           string
	DeliveryWarning string
}

func NewCodeService(deps CodeDependencies) *CodeService {
	generate := deps.Generator
	if generate == nil {
		generate = RandomDigits
	}
	return &CodeService{
		store:       deps.Store,
		members:     memberGate{members: deps.Members, timeout: deps.Config.UpstreamTimeout},
		limiter:     deps.Limiter,
		hasher:      deps.Hasher,
		generate:    generate,
		sender:      deps.Sender,
		cfg:         deps.Config,
		instruments: newInstruments(deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

// Issue creates a new ISSUED code for the member and purpose, revoking any
// code still ISSUED for the same pair.
func (s *CodeService) Issue(ctx context.Context, in IssueInput, now time.Time) (result *IssueResult, err error) {
	ctx, span := s.start(ctx, "codes.issue",
		attribute.String("member_id", in.MemberID),
		attribute.String("purpose", string(in.Purpose)),
	)
	defer func() { s.finish(span, "issue", err) }()

	if !in.Purpose.Valid() {
		return nil, apperrors.ErrUnknownPurpose.WithDetails(map[string]any{"purpose": in.Purpose})
	}
	if in.MemberID == "" {
		return nil, apperrors.NewValidationError("member_id is required", nil)
	}

	member, err := s.members.requireActive(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.limiter.Allow(ctx, pairLockKey(in.MemberID, in.Purpose), now)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !allowed {
		return nil, apperrors.ErrRateLimited.WithDetails(map[string]any{
			"limit":  s.cfg.IssueLimit,
			"window": s.cfg.IssueWindow.String(),
		})
	}

	value, err := s.generate(s.cfg.CodeLength)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	code := &domain.VerificationCode{
		ID:        uuid.NewString(),
		MemberID:  in.MemberID,
		Purpose:   in.Purpose,
		CodeHash:  s.hasher.Hash(in.MemberID, in.Purpose, value),
		State:     domain.CodeStateIssued,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}

	var revoked []domain.VerificationCode
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, pairLockKey(in.MemberID, in.Purpose)); err != nil {
			return err
		}
		var err error
		revoked, err = tx.Codes().RevokeIssued(ctx, in.MemberID, in.Purpose, now)
		if err != nil {
			return err
		}
		return tx.Codes().Create(ctx, code)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("concurrent issuance for member and purpose", nil)
		}
		return nil, err
	}

	result = &IssueResult{Code: code, Value: value}
	if s.sender != nil {
		sendErr := s.sender.Send(context.WithoutCancel(ctx), CodeDelivery{
			MemberID:    member.ID,
			Destination: deliveryDestination(member),
			Value:       value,
			Purpose:     code.Purpose,
			ExpiresAt:   code.ExpiresAt,
		})
		if sendErr != nil {
			s.logger.Warn("verification code delivery failed",
				zap.String("member_id", member.ID),
				zap.String("code_id", code.ID),
				zap.Error(sendErr),
			)
			result.DeliveryWarning = sendErr.Error()
		}
	}

	for _, old := range revoked {
		s.publish(ctx, events.Event{
			Type:        events.EventCodeRevoked,
			AggregateID: old.ID,
			MemberID:    old.MemberID,
			Timestamp:   now,
			Payload:     events.CodeRevokedPayload{Purpose: old.Purpose, ReplacedBy: code.ID},
		})
	}
	s.publish(ctx, events.Event{
		Type:        events.EventCodeIssued,
		AggregateID: code.ID,
		MemberID:    code.MemberID,
		Timestamp:   now,
		Payload: events.CodeIssuedPayload{
			Purpose:   code.Purpose,
			ExpiresAt: code.ExpiresAt,
			Delivered: result.DeliveryWarning == "",
		},
	})
	return result, nil
}

// History lists every code ever issued for the member and purpose, oldest first.
func (s *CodeService) History(ctx context.Context, memberID string, purpose domain.CodePurpose) ([]domain.VerificationCode, error) {
	if !purpose.Valid() {
		return nil, apperrors.ErrUnknownPurpose
	}
	var codes []domain.VerificationCode
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		codes, err = tx.Codes().ListByMember(ctx, memberID, purpose)
		return err
	})
	return codes, err
}
