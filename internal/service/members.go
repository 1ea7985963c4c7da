package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// memberGate checks membership status against the directory within a
// bounded time.
type memberGate struct {
	members repository.MemberRepository
	timeout time.Duration
}

func (g memberGate) requireActive(ctx context.Context, memberID string) (*domain.Member, error) {
	lookupCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	member, err := g.members.GetMember(lookupCtx, memberID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.ErrMemberNotFound.WithDetails(map[string]any{"member_id": memberID})
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, apperrors.ErrUpstreamTimeout.Wrap(err)
		}
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !member.IsActive() {
		return nil, apperrors.ErrInvalidMember.WithDetails(map[string]any{
			"member_id": memberID,
			"status":    member.Status,
		})
	}
	return member, nil
}
