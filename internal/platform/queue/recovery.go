package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// StartRecoveryRoutine polls the PEL for simulation jobs whose worker died
// mid-run and reclaims them so the pending list does not grow without bound.
// Reclaimed jobs are acknowledged rather than re-run: re-running a
// half-finished submission would clobber the user's log file for a job the
// caller already gave up on.
func (r *RedisQueue) StartRecoveryRoutine(ctx context.Context, interval time.Duration, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consumerName := "recovery-agent"

	slog.Info("Starting queue recovery routine", "interval", interval, "maxAge", maxAge)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := "-"

			for {
				messages, nextStart, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
					Stream:   r.stream,
					Group:    r.group,
					MinIdle:  maxAge,
					Start:    start,
					Count:    10,
					Consumer: consumerName,
				}).Result()
				if err != nil {
					slog.Error("Recovery routine failed", "error", err)
					break
				}

				if len(messages) == 0 {
					break
				}

				for _, msg := range messages {
					slog.Warn("Stale job claimed by recovery agent", "msgID", msg.ID)
					r.client.XAck(ctx, r.stream, r.group, msg.ID)
				}

				start = nextStart
				if start == "0-0" {
					break
				}
			}
		}
	}
}
