package classify

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartRefreshScheduler starts a cron-based scheduler that periodically
// refreshes the category vocabulary ahead of the TTL, so webhook
// requests rarely pay for a synchronous fetch.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 */6 * * *" (every 6 hours), "30 4 * * *" (daily 04:30).
func StartRefreshScheduler(ctx context.Context, cache *CategoryCache, fieldID, schedule string, logger *zap.Logger) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		logger.Info("vocabulary refresh scheduler disabled (no schedule set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		logger.Warn("invalid refresh schedule, scheduler disabled",
			zap.String("schedule", schedule), zap.Error(err))
		return
	}

	logger.Info("vocabulary refresh scheduled",
		zap.String("schedule", schedule), zap.String("field_id", fieldID))

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)

			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
			}

			if _, err := cache.Refresh(ctx, fieldID); err != nil {
				logger.Warn("scheduled vocabulary refresh failed", zap.Error(err))
			}
		}
	}()
}
