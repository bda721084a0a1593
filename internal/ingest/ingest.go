package ingest

import (
	"context"
	"log/slog"
	"time"

	"notigate/internal/model"
)

// Batch is one intake unit: candidate notifications plus the context
// snapshot they should be judged against.
type Batch struct {
	Notifications []model.Notification
	Context       model.ContextSnapshot
	Source        string
}

func SendNonBlocking(ctx context.Context, out chan<- Batch, b Batch, logger *slog.Logger) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("batch channel full, dropping batch", "source", b.Source, "size", len(b.Notifications))
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
