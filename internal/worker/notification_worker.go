package worker

import (
	"context"
	"time"

	"github.com/spec-kit/visit-verification/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartAuditWorker registers the audit trail handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}

// Sweeper is an in-process limiter that can forget idle keys.
type Sweeper interface {
	Sweep(now time.Time)
}

// StartLimiterSweeper drops idle keys from in-process limiters until ctx ends.
func StartLimiterSweeper(ctx context.Context, interval time.Duration, limiters ...Sweeper) {
	if len(limiters) == 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, limiter := range limiters {
					limiter.Sweep(now)
				}
			}
		}
	}()
}
