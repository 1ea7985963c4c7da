package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// CodeDelivery is what the member receives out of band.
type CodeDelivery struct {
	MemberID    string             `json:"member_id"`
	Destination string             `json:"destination"`
	Value       string             `json:"code"`
	Purpose     domain.CodePurpose `json:"purpose"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// CodeSender hands a freshly issued code to a delivery channel.
type CodeSender interface {
	Send(ctx context.Context, delivery CodeDelivery) error
}

// LogSender writes deliveries to the log. Development only.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, d CodeDelivery) error {
	s.logger.Info("verification code issued",
		zap.String("member_id", d.MemberID),
		zap.String("destination", d.Destination),
		zap.String("purpose", string(d.Purpose)),
		zap.Time("expires_at", d.ExpiresAt),
	)
	s.logger.Debug("verification code value", zap.String("member_id", d.MemberID), zap.String("code", d.Value))
	return nil
}

// WebhookSender posts JSON messages to an SMS/email gateway.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *WebhookSender) Send(ctx context.Context, d CodeDelivery) error {
	return s.Post(ctx, "verification_code", d)
}

// Post delivers one typed message; any non-2xx response is an error.
func (s *WebhookSender) Post(ctx context.Context, messageType string, data any) error {
	body, err := json.Marshal(webhookMessage{Type: messageType, Data: data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook delivery: unexpected status code %d", resp.StatusCode)
	}
	return nil
}

func deliveryDestination(m *domain.Member) string {
	if m.PhoneNumber != "" {
		return m.PhoneNumber
	}
	return m.Email
}
