package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/events"
)

// auditActions maps workflow events onto the audit trail's action vocabulary.
var auditActions = map[events.EventType]struct {
	action string
	model  string
}{
	events.EventCodeIssued:     {"otp_generation", "verification_code"},
	events.EventCodeRevoked:    {"update", "verification_code"},
	events.EventCodeConsumed:   {"otp_verification", "verification_code"},
	events.EventCodeExpired:    {"update", "verification_code"},
	events.EventVisitOpened:    {"create", "visit"},
	events.EventVisitClosed:    {"update", "visit"},
	events.EventVisitVoided:    {"update", "visit"},
	events.EventClaimSubmitted: {"create", "claim"},
	events.EventClaimDecided:   {"approval", "claim"},
}

// AuditService writes one structured record per workflow event.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, logger: logger.Named("audit")}
}

// RegisterHandlers subscribes to every workflow event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for eventType := range auditActions {
		a.dispatcher.Subscribe(eventType, a.record)
	}
}

func (a *AuditService) record(_ context.Context, event events.Event) error {
	entry := auditActions[event.Type]
	action := entry.action
	if p, ok := event.Payload.(events.ClaimDecidedPayload); ok && p.Outcome == domain.ClaimStateRejected {
		action = "rejection"
	}
	a.logger.Info("audit",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("action_type", action),
		zap.String("model_name", entry.model),
		zap.String("object_id", event.AggregateID),
		zap.String("member_id", event.MemberID),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	)
	return nil
}
