package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/events"
)

// NotificationService tells members and hospitals about workflow outcomes.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	webhook    *WebhookSender
}

// NewNotificationService creates the service. A nil webhook means outcomes
// are only logged.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, webhook *WebhookSender) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		webhook:    webhook,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventClaimDecided, n.handleClaimDecided)
	n.dispatcher.Subscribe(events.EventVisitOpened, n.handleVisitOpened)
}

type claimUpdate struct {
	ClaimID  string                     `json:"claim_id"`
	MemberID string                     `json:"member_id,omitempty"`
	Decision events.ClaimDecidedPayload `json:"decision"`
}

func (n *NotificationService) handleClaimDecided(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ClaimDecidedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("ClaimDecided",
		zap.String("claim_id", event.AggregateID),
		zap.String("outcome", string(payload.Outcome)),
	)
	return n.sendWebhook(ctx, "claim_update", claimUpdate{
		ClaimID:  event.AggregateID,
		MemberID: event.MemberID,
		Decision: payload,
	})
}

type visitNotice struct {
	VisitID  string                    `json:"visit_id"`
	MemberID string                    `json:"member_id"`
	From     string                    `json:"from,omitempty"`
	Visit    events.VisitOpenedPayload `json:"visit"`
}

// handleVisitOpened tells the member a visit was opened on their code.
func (n *NotificationService) handleVisitOpened(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.VisitOpenedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("VisitOpened", zap.String("visit_id", event.AggregateID), zap.String("member_id", event.MemberID))
	return n.sendWebhook(ctx, "visit_opened", visitNotice{
		VisitID:  event.AggregateID,
		MemberID: event.MemberID,
		From:     strings.TrimSpace(n.cfg.EmailFrom),
		Visit:    payload,
	})
}

func (n *NotificationService) sendWebhook(ctx context.Context, messageType string, data any) error {
	if n.webhook == nil {
		return nil
	}
	if err := n.webhook.Post(ctx, messageType, data); err != nil {
		n.logger.Warn("notification webhook failed", zap.String("type", messageType), zap.Error(err))
		return err
	}
	return nil
}
