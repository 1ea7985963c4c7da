package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
)

func newIssued(memberID string, at time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Purpose:   domain.PurposeHospitalVisit,
		CodeHash:  "hash-" + memberID,
		State:     domain.CodeStateIssued,
		IssuedAt:  at,
		ExpiresAt: at.Add(5 * time.Minute),
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()
	code := newIssued("m-1", now)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Codes().Create(ctx, code))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Codes().GetByID(ctx, code.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInTx_RollbackRestoresPreviousState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()
	code := newIssued("m-1", now)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Codes().Create(ctx, code)
	}))

	_ = store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Codes().Transition(ctx, code.ID, domain.CodeStateIssued, domain.CodeStateConsumed, now))
		return errors.New("abort")
	})

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Codes().GetByID(ctx, code.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CodeStateIssued, got.State)
		assert.Nil(t, got.ConsumedAt)
		return nil
	}))
}

func TestInTx_CancelledContextDiscardsWork(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	code := newIssued("m-1", time.Now())

	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Codes().Create(ctx, code))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	err = store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Codes().GetByID(ctx, code.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCodes_OneIssuedPerPair(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Codes().Create(ctx, newIssued("m-1", now))
	}))
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Codes().Create(ctx, newIssued("m-1", now))
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		revoked, err := tx.Codes().RevokeIssued(ctx, "m-1", domain.PurposeHospitalVisit, now)
		require.NoError(t, err)
		assert.Len(t, revoked, 1)
		return tx.Codes().Create(ctx, newIssued("m-1", now.Add(time.Second)))
	}))
}

func TestCodes_TransitionIsConditional(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()
	code := newIssued("m-1", now)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Codes().Create(ctx, code); err != nil {
			return err
		}
		if err := tx.Codes().Transition(ctx, code.ID, domain.CodeStateIssued, domain.CodeStateConsumed, now); err != nil {
			return err
		}
		err := tx.Codes().Transition(ctx, code.ID, domain.CodeStateIssued, domain.CodeStateConsumed, now)
		assert.ErrorIs(t, err, repository.ErrConflict)
		return nil
	}))
}

func TestLock_SerializesHolders(t *testing.T) {
	store := NewStore()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				if err := tx.Lock(ctx, "visit:1"); err != nil {
					return err
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, store.locks.locks)
}

func TestLock_HonoursContext(t *testing.T) {
	store := NewStore()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_ = tx.Lock(ctx, "k")
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Lock(ctx, "k")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestClaims_OneActivePerVisit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()
	claim := func() *domain.Claim {
		return &domain.Claim{ID: uuid.NewString(), VisitID: "v-1", Amount: 100, State: domain.ClaimStateSubmitted, SubmittedAt: &now}
	}

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Claims().Create(ctx, claim())
	}))
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Claims().Create(ctx, claim())
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestMemberDirectory(t *testing.T) {
	dir := NewMemberDirectory(domain.Member{ID: "m-1", Status: domain.MemberStatusActive})
	m, err := dir.GetMember(context.Background(), "m-1")
	require.NoError(t, err)
	assert.True(t, m.IsActive())

	dir.SetStatus("m-1", domain.MemberStatusSuspended)
	m, err = dir.GetMember(context.Background(), "m-1")
	require.NoError(t, err)
	assert.False(t, m.IsActive())

	_, err = dir.GetMember(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemberDirectory_LoadJSON(t *testing.T) {
	dir := NewMemberDirectory()
	n, err := dir.LoadJSON([]byte(`[{"id":"SHA01","phone_number":"+2547","status":"ACTIVE"},{"id":"SHA02","status":"PENDING"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err := dir.GetMember(context.Background(), "SHA02")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberStatusPending, m.Status)

	_, err = dir.LoadJSON([]byte(`[{"id":"SHA03","status":"UNKNOWN"}]`))
	assert.Error(t, err)
	_, err = dir.GetMember(context.Background(), "SHA03")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
