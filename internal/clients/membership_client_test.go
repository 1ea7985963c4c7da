package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

func testConfig(baseURL string) config.MembershipConfig {
	return config.MembershipConfig{
		BaseURL:         baseURL,
		Timeout:         time.Second,
		MaxAttempts:     3,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}
}

func TestGetMember_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/members/SHA01123456", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"SHA01123456","full_name":"Jane W","phone_number":"+254700000000","status":"ACTIVE"}`))
	}))
	defer srv.Close()

	client := NewMembershipClient(testConfig(srv.URL), zap.NewNop())
	member, err := client.GetMember(context.Background(), "SHA01123456")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberStatusActive, member.Status)
	assert.Equal(t, "+254700000000", member.PhoneNumber)
}

func TestGetMember_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewMembershipClient(testConfig(srv.URL), zap.NewNop())
	_, err := client.GetMember(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetMember_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"m-1","status":"SUSPENDED"}`))
	}))
	defer srv.Close()

	client := NewMembershipClient(testConfig(srv.URL), zap.NewNop())
	member, err := client.GetMember(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberStatusSuspended, member.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetMember_BreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 1
	client := NewMembershipClient(cfg, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.GetMember(context.Background(), "m-1")
		require.Error(t, err)
	}
	_, err := client.GetMember(context.Background(), "m-1")
	assert.True(t, errors.Is(err, apperrors.ErrUpstreamTimeout))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetMember_HonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client := NewMembershipClient(testConfig(srv.URL), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.GetMember(ctx, "m-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
