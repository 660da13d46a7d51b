package experiment

import (
	"context"
	"log/slog"
	"time"
)

const reaperInterval = 5 * time.Minute

// RunReaper periodically drops finished or idle sessions older than ttl.
// It blocks until ctx is done.
func RunReaper(ctx context.Context, sessions *Sessions, ttl time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	interval := reaperInterval
	if ttl > 0 && ttl < interval {
		interval = ttl
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("[REAPER] Session reaper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			if removed := sessions.Reap(ttl); removed > 0 {
				logger.Info("[REAPER] Reaped experiment sessions", "count", removed, "remaining", sessions.Len())
			}
		case <-ctx.Done():
			logger.Info("[REAPER] Session reaper shutting down", "reason", ctx.Err())
			return
		}
	}
}
