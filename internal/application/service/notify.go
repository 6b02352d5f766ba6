package service

import (
	"context"
	"fmt"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/event"
	"go.uber.org/zap"
)

// FailureNotifier returns a job.failed handler that forwards the failure to
// the operators' chat, bounded by timeout
func FailureNotifier(notifier port.Notifier, timeout time.Duration, logger *zap.Logger) func(context.Context, *event.Event) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(ctx context.Context, evt *event.Event) error {
		if evt.Job == nil {
			return fmt.Errorf("event %s carries no job", evt.ID)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := notifier.NotifyJobFailed(ctx, evt.Job, evt.GetPayloadString(event.KeyReason)); err != nil {
			return fmt.Errorf("failed to notify job failure: %w", err)
		}
		logger.Debug("Job failure notified", zap.String("job_id", evt.Job.ID))
		return nil
	}
}

// JobEventLogger returns a handler that records lifecycle events in the log
func JobEventLogger(logger *zap.Logger) func(context.Context, *event.Event) error {
	return func(_ context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID),
		}
		if evt.Job != nil {
			fields = append(fields,
				zap.String("job_id", evt.Job.ID),
				zap.String("kind", string(evt.Job.Kind)))
		}
		switch evt.Type {
		case event.TypeJobCompleted:
			fields = append(fields, zap.Int64("invoice_id", evt.GetPayloadInt(event.KeyInvoiceID)))
		case event.TypeJobsExpired:
			fields = append(fields, zap.Int64("count", evt.GetPayloadInt(event.KeyCount)))
		}
		logger.Info("Job event", fields...)
		return nil
	}
}
