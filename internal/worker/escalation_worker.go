package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/concern-service/internal/service"
)

// StartEscalationWorker runs the escalation sweep on a fixed interval
// until the context is cancelled. Sweep failures are logged, never fatal.
func StartEscalationWorker(ctx context.Context, escalationService *service.EscalationService, interval time.Duration, logger *zap.Logger) {
	if escalationService == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := escalationService.RunSweep(ctx); err != nil {
					logger.Error("escalation sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
