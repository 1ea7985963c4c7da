package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// Ledger validates presented codes and moves them to CONSUMED. It runs
// inside the caller's transaction so the consumption commits together with
// whatever the code unlocks.
type Ledger struct {
	hasher *CodeHasher
}

func NewLedger(hasher *CodeHasher) *Ledger {
	return &Ledger{hasher: hasher}
}

// ConsumeInput identifies a presented code.
type ConsumeInput struct {
	MemberID string
	Value    string
	Purpose  domain.CodePurpose
}

// Consume checks, in order, that the code exists for the member and
// purpose, has not expired, and is still ISSUED, then consumes it.
//
// When the code is past its expiry and was still ISSUED, Consume moves it
// to EXPIRED and returns it together with ErrCodeExpired; the caller should
// commit that transition. In every other failure the returned code is nil.
func (l *Ledger) Consume(ctx context.Context, tx repository.Tx, in ConsumeInput, now time.Time) (*domain.VerificationCode, error) {
	if !in.Purpose.Valid() {
		return nil, apperrors.ErrUnknownPurpose
	}
	value := strings.TrimSpace(in.Value)
	if value == "" || in.MemberID == "" {
		return nil, apperrors.ErrCodeNotFound
	}
	if err := tx.Lock(ctx, pairLockKey(in.MemberID, in.Purpose)); err != nil {
		return nil, err
	}

	hash := l.hasher.Hash(in.MemberID, in.Purpose, value)
	code, err := tx.Codes().FindLatest(ctx, in.MemberID, in.Purpose, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}

	if code.IsExpired(now) {
		expired := apperrors.ErrCodeExpired.WithDetails(map[string]any{"expires_at": code.ExpiresAt})
		if code.State != domain.CodeStateIssued {
			return nil, expired
		}
		err := tx.Codes().Transition(ctx, code.ID, domain.CodeStateIssued, domain.CodeStateExpired, now)
		if errors.Is(err, repository.ErrConflict) {
			return nil, expired
		}
		if err != nil {
			return nil, err
		}
		code.MarkTransition(domain.CodeStateExpired, now)
		return code, expired
	}

	if code.State != domain.CodeStateIssued {
		return nil, apperrors.ErrCodeAlreadyUsed.WithDetails(map[string]any{"state": code.State})
	}
	err = tx.Codes().Transition(ctx, code.ID, domain.CodeStateIssued, domain.CodeStateConsumed, now)
	if errors.Is(err, repository.ErrConflict) {
		return nil, apperrors.ErrCodeAlreadyUsed
	}
	if err != nil {
		return nil, err
	}
	code.MarkTransition(domain.CodeStateConsumed, now)
	return code, nil
}
