package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// MembershipClient reads member status from the membership registry.
type MembershipClient struct {
	baseURL     string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	maxAttempts uint
	logger      *zap.Logger
}

type memberResponse struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Status      string `json:"status"`
}

var errServerStatus = errors.New("membership registry returned a server error")

func NewMembershipClient(cfg config.MembershipConfig, logger *zap.Logger) *MembershipClient {
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &MembershipClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "membership",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, repository.ErrNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		maxAttempts: uint(attempts),
		logger:      logger,
	}
}

var _ repository.MemberRepository = (*MembershipClient)(nil)

// GetMember fetches one member. Server errors and transport failures are
// retried with exponential backoff until ctx ends; 404 is final.
func (c *MembershipClient) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	member, err := backoff.Retry(ctx, func() (*domain.Member, error) {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, memberID)
		})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, backoff.Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, backoff.Permanent(apperrors.ErrUpstreamTimeout.Wrap(err))
			}
			return nil, err
		}
		return res.(*domain.Member), nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxAttempts))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return member, nil
}

func (c *MembershipClient) fetch(ctx context.Context, memberID string) (*domain.Member, error) {
	endpoint := fmt.Sprintf("%s/members/%s", c.baseURL, url.PathEscape(memberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, repository.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var body memberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode member: %w", err))
	}
	status := domain.MemberStatus(body.Status)
	if !status.Valid() {
		return nil, backoff.Permanent(fmt.Errorf("unknown member status %q", body.Status))
	}
	return &domain.Member{
		ID:          body.ID,
		FullName:    body.FullName,
		PhoneNumber: body.PhoneNumber,
		Email:       body.Email,
		Status:      status,
	}, nil
}
