package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMemoryLimiter_RollingWindow(t *testing.T) {
	l := NewMemoryLimiter(3, 15*time.Minute)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "m-1:HOSPITAL_VISIT", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "m-1:HOSPITAL_VISIT", base.Add(14*time.Minute))
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "m-2:HOSPITAL_VISIT", base.Add(14*time.Minute))
	assert.True(t, ok, "keys are independent")

	ok, _ = l.Allow(ctx, "m-1:HOSPITAL_VISIT", base.Add(15*time.Minute+time.Second))
	assert.True(t, ok, "first admission left the window")
}

func TestMemoryLimiter_NeverExceedsLimitInAnyWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 5).Draw(t, "limit")
		window := time.Duration(rapid.IntRange(1, 60).Draw(t, "windowSec")) * time.Second
		steps := rapid.SliceOfN(rapid.IntRange(0, 20), 1, 60).Draw(t, "gapsSec")

		l := NewMemoryLimiter(limit, window)
		now := time.Unix(0, 0)
		var admitted []time.Time
		for _, gap := range steps {
			now = now.Add(time.Duration(gap) * time.Second)
			ok, err := l.Allow(context.Background(), "k", now)
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				admitted = append(admitted, now)
			}
			count := 0
			for _, ts := range admitted {
				if ts.After(now.Add(-window)) {
					count++
				}
			}
			if count > limit {
				t.Fatalf("%d admissions inside window, limit %d", count, limit)
			}
		}
	})
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Now()
	_, _ = l.Allow(context.Background(), "a", now)
	l.Sweep(now.Add(2 * time.Minute))
	assert.Empty(t, l.logs)
}

func TestAttemptThrottle(t *testing.T) {
	th := NewAttemptThrottle(5, 2)
	now := time.Now()
	assert.True(t, th.Allow("m-1", now))
	assert.True(t, th.Allow("m-1", now))
	assert.False(t, th.Allow("m-1", now))
	assert.True(t, th.Allow("m-2", now))
	assert.True(t, th.Allow("m-1", now.Add(12*time.Second)))
}

func TestAttemptThrottle_SweepDropsIdleKeys(t *testing.T) {
	th := NewAttemptThrottle(5, 5)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		th.Allow(fmt.Sprintf("bogus-%d", i), now)
	}
	for i := 0; i < 5; i++ {
		th.Allow("busy", now.Add(10*time.Second))
	}
	require.Equal(t, 1001, th.Len())

	th.Sweep(now.Add(5 * time.Second))
	assert.Equal(t, 1001, th.Len(), "buckets still refilling are kept")

	th.Sweep(now.Add(13 * time.Second))
	assert.Equal(t, 1, th.Len())
	assert.False(t, th.Allow("busy", now.Add(13*time.Second)), "a drained key keeps its state")

	th.Sweep(now.Add(2 * time.Minute))
	assert.Zero(t, th.Len())
}

func TestRedisLimiter(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	l := NewRedisLimiter(client, "ratelimit:test:", 2, time.Minute)
	base := time.Now()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(context.Background(), key, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(context.Background(), key, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(context.Background(), key, base.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	client.Del(context.Background(), "ratelimit:test:"+key)
}
