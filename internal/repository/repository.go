package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a conditional write lost to a concurrent
	// writer or violated a uniqueness constraint.
	ErrConflict = errors.New("repository: conflicting write")
)

// CodeRepository persists verification codes.
type CodeRepository interface {
	Create(ctx context.Context, code *domain.VerificationCode) error
	GetByID(ctx context.Context, id string) (*domain.VerificationCode, error)
	// FindLatest returns the most recently issued code for the member and
	// purpose whose hash matches, regardless of state.
	FindLatest(ctx context.Context, memberID string, purpose domain.CodePurpose, codeHash string) (*domain.VerificationCode, error)
	// RevokeIssued moves every ISSUED code of the pair to REVOKED and
	// returns the revoked codes.
	RevokeIssued(ctx context.Context, memberID string, purpose domain.CodePurpose, at time.Time) ([]domain.VerificationCode, error)
	// Transition moves the code from one state to another only while it is
	// still in from; otherwise ErrConflict.
	Transition(ctx context.Context, id string, from, to domain.CodeState, at time.Time) error
	ListByMember(ctx context.Context, memberID string, purpose domain.CodePurpose) ([]domain.VerificationCode, error)
}

// VisitRepository persists visits.
type VisitRepository interface {
	Create(ctx context.Context, visit *domain.Visit) error
	GetByID(ctx context.Context, id string) (*domain.Visit, error)
	// Transition writes the visit's state and timestamps only while the
	// stored state is still from; otherwise ErrConflict.
	Transition(ctx context.Context, visit *domain.Visit, from domain.VisitState) error
}

// ClaimRepository persists claims.
type ClaimRepository interface {
	Create(ctx context.Context, claim *domain.Claim) error
	GetByID(ctx context.Context, id string) (*domain.Claim, error)
	HasActiveForVisit(ctx context.Context, visitID string) (bool, error)
	// Transition writes the claim's decision fields only while the stored
	// state is still from; otherwise ErrConflict.
	Transition(ctx context.Context, claim *domain.Claim, from domain.ClaimState) error
}

// MemberRepository is a read-only view over registered members.
type MemberRepository interface {
	GetMember(ctx context.Context, memberID string) (*domain.Member, error)
}

// Tx exposes repositories bound to one unit of work.
type Tx interface {
	Codes() CodeRepository
	Visits() VisitRepository
	Claims() ClaimRepository
	// Lock blocks until no other transaction holds key, then holds it
	// until this transaction ends.
	Lock(ctx context.Context, key string) error
}

// Store runs units of work. fn's writes commit together when it returns nil
// and are discarded otherwise. A context cancelled before commit discards
// the work.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
