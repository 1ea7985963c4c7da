// Package memory is an in-process implementation of the repository
// interfaces for single-node deployments and tests. Writes are visible to
// other transactions immediately; rollback restores the previous values of
// every row the transaction touched. Callers that need isolation take
// Tx.Lock on the key they mutate.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
)

// Store keeps codes, visits and claims in maps.
type Store struct {
	mu     sync.Mutex
	codes  map[string]domain.VerificationCode
	visits map[string]domain.Visit
	claims map[string]domain.Claim
	locks  *keyedMutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		codes:  make(map[string]domain.VerificationCode),
		visits: make(map[string]domain.Visit),
		claims: make(map[string]domain.Claim),
		locks:  newKeyedMutex(),
	}
}

var _ repository.Store = (*Store)(nil)

// InTx runs fn and rolls back its writes if it fails or ctx is cancelled
// before fn returns.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: s}
	defer tx.unlockAll()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	store   *Store
	undo    []func()
	unlocks []func()
}

func (t *memTx) Codes() repository.CodeRepository   { return &codeRepo{tx: t} }
func (t *memTx) Visits() repository.VisitRepository { return &visitRepo{tx: t} }
func (t *memTx) Claims() repository.ClaimRepository { return &claimRepo{tx: t} }

func (t *memTx) Lock(ctx context.Context, key string) error {
	unlock, err := t.store.locks.lock(ctx, key)
	if err != nil {
		return err
	}
	t.unlocks = append(t.unlocks, unlock)
	return nil
}

func (t *memTx) unlockAll() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// Callers hold store.mu.
func (t *memTx) putCode(code domain.VerificationCode) {
	prev, existed := t.store.codes[code.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.store.codes[code.ID] = prev
		} else {
			delete(t.store.codes, code.ID)
		}
	})
	t.store.codes[code.ID] = code
}

func (t *memTx) putVisit(visit domain.Visit) {
	prev, existed := t.store.visits[visit.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.store.visits[visit.ID] = prev
		} else {
			delete(t.store.visits, visit.ID)
		}
	})
	t.store.visits[visit.ID] = visit
}

func (t *memTx) putClaim(claim domain.Claim) {
	prev, existed := t.store.claims[claim.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.store.claims[claim.ID] = prev
		} else {
			delete(t.store.claims, claim.ID)
		}
	})
	t.store.claims[claim.ID] = claim
}

type codeRepo struct{ tx *memTx }

func (r *codeRepo) Create(_ context.Context, code *domain.VerificationCode) error {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.codes[code.ID]; exists {
		return repository.ErrConflict
	}
	if code.State == domain.CodeStateIssued {
		for _, other := range s.codes {
			if other.MemberID == code.MemberID && other.Purpose == code.Purpose && other.State == domain.CodeStateIssued {
				return repository.ErrConflict
			}
		}
	}
	r.tx.putCode(*code)
	return nil
}

func (r *codeRepo) GetByID(_ context.Context, id string) (*domain.VerificationCode, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &code, nil
}

func (r *codeRepo) FindLatest(_ context.Context, memberID string, purpose domain.CodePurpose, codeHash string) (*domain.VerificationCode, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.VerificationCode
	for _, code := range s.codes {
		if code.MemberID != memberID || code.Purpose != purpose || code.CodeHash != codeHash {
			continue
		}
		if latest == nil || code.IssuedAt.After(latest.IssuedAt) {
			c := code
			latest = &c
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r *codeRepo) RevokeIssued(_ context.Context, memberID string, purpose domain.CodePurpose, at time.Time) ([]domain.VerificationCode, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked []domain.VerificationCode
	for _, code := range s.codes {
		if code.MemberID != memberID || code.Purpose != purpose || code.State != domain.CodeStateIssued {
			continue
		}
		code.MarkTransition(domain.CodeStateRevoked, at)
		r.tx.putCode(code)
		revoked = append(revoked, code)
	}
	return revoked, nil
}

func (r *codeRepo) Transition(_ context.Context, id string, from, to domain.CodeState, at time.Time) error {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok || code.State != from {
		return repository.ErrConflict
	}
	code.MarkTransition(to, at)
	r.tx.putCode(code)
	return nil
}

func (r *codeRepo) ListByMember(_ context.Context, memberID string, purpose domain.CodePurpose) ([]domain.VerificationCode, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.VerificationCode
	for _, code := range s.codes {
		if code.MemberID == memberID && code.Purpose == purpose {
			result = append(result, code)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.Before(result[j].IssuedAt) })
	return result, nil
}

type visitRepo struct{ tx *memTx }

func (r *visitRepo) Create(_ context.Context, visit *domain.Visit) error {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.visits[visit.ID]; exists {
		return repository.ErrConflict
	}
	for _, other := range s.visits {
		if other.CodeID == visit.CodeID || other.VisitNumber == visit.VisitNumber {
			return repository.ErrConflict
		}
	}
	r.tx.putVisit(*visit)
	return nil
}

func (r *visitRepo) GetByID(_ context.Context, id string) (*domain.Visit, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	visit, ok := s.visits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &visit, nil
}

func (r *visitRepo) Transition(_ context.Context, visit *domain.Visit, from domain.VisitState) error {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.visits[visit.ID]
	if !ok || stored.State != from {
		return repository.ErrConflict
	}
	stored.State = visit.State
	stored.ClosedAt = visit.ClosedAt
	stored.VoidedAt = visit.VoidedAt
	stored.VoidReason = visit.VoidReason
	r.tx.putVisit(stored)
	return nil
}

type claimRepo struct{ tx *memTx }

func (r *claimRepo) Create(_ context.Context, claim *domain.Claim) error {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[claim.ID]; exists {
		return repository.ErrConflict
	}
	if claim.State.Active() {
		for _, other := range s.claims {
			if other.VisitID == claim.VisitID && other.State.Active() {
				return repository.ErrConflict
			}
		}
	}
	r.tx.putClaim(*claim)
	return nil
}

func (r *claimRepo) GetByID(_ context.Context, id string) (*domain.Claim, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &claim, nil
}

func (r *claimRepo) HasActiveForVisit(_ context.Context, visitID string) (bool, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, claim := range s.claims {
		if claim.VisitID == visitID && claim.State.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (r *claimRepo) Transition(_ context.Context, claim *domain.Claim, from domain.ClaimState) error {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.claims[claim.ID]
	if !ok || stored.State != from {
		return repository.ErrConflict
	}
	stored.State = claim.State
	stored.ApprovedAmount = claim.ApprovedAmount
	stored.DecidedAt = claim.DecidedAt
	stored.ReviewerID = claim.ReviewerID
	stored.ReviewNotes = claim.ReviewNotes
	stored.RejectionReason = claim.RejectionReason
	r.tx.putClaim(stored)
	return nil
}
