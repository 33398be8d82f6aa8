package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// counterTTL keeps weekly counters around a little past their window so a
// late reconcile still finds them.
const counterTTL = 14 * 24 * time.Hour

// boundedDecrScript decrements a counter without letting it go negative. A
// user can never be refunded more than they were charged.
var boundedDecrScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local dec = tonumber(ARGV[1])
if dec > current then
	dec = current
end
if dec > 0 then
	redis.call('DECRBY', KEYS[1], dec)
end
return current - dec
`)

// Ledger enforces and accounts per-user upload quotas. Counters live in Redis
// keyed by ISO week so the window rolls over without any cleanup job.
type Ledger struct {
	client     *redis.Client
	cfg        *config.QuotaConfig
	privileged map[uuid.UUID]struct{}
	logger     *zap.Logger
}

// NewLedger creates a quota ledger
func NewLedger(client *redis.Client, cfg *config.QuotaConfig, logger *zap.Logger) *Ledger {
	privileged := make(map[uuid.UUID]struct{})
	if cfg != nil {
		for _, id := range cfg.PrivilegedUsers() {
			privileged[id] = struct{}{}
		}
	}
	return &Ledger{
		client:     client,
		cfg:        cfg,
		privileged: privileged,
		logger:     logger,
	}
}

func weeklyKey(userID uuid.UUID, now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("quota:uploads:%s:%d-W%02d", userID, year, week)
}

// IsPrivileged reports whether the user bypasses all limits
func (l *Ledger) IsPrivileged(userID uuid.UUID) bool {
	_, ok := l.privileged[userID]
	return ok
}

// Enforce rejects the upload before any work starts if it would exceed the
// user's weekly count or the single-upload duration cap. No side effects.
func (l *Ledger) Enforce(ctx context.Context, userID uuid.UUID, durationSeconds float64) error {
	if l.IsPrivileged(userID) {
		return nil
	}

	if l.cfg.MaxUploadDuration > 0 && durationSeconds > float64(l.cfg.MaxUploadDuration) {
		return apperrors.ErrQuotaExceeded(
			fmt.Sprintf("recording duration %.0fs exceeds the %ds limit", durationSeconds, l.cfg.MaxUploadDuration),
		)
	}

	if l.cfg.WeeklyUploadLimit > 0 {
		count, err := l.client.Get(ctx, weeklyKey(userID, time.Now())).Int()
		if err != nil && err != redis.Nil {
			return apperrors.ErrCacheFailed("quota check", err)
		}
		if count >= l.cfg.WeeklyUploadLimit {
			return apperrors.ErrQuotaExceeded(
				fmt.Sprintf("weekly upload count %d is at the limit of %d", count, l.cfg.WeeklyUploadLimit),
			)
		}
	}

	return nil
}

// Commit charges the user one upload. Called once, after the upload is
// accepted into the pipeline.
func (l *Ledger) Commit(ctx context.Context, userID uuid.UUID, durationSeconds float64) error {
	if l.IsPrivileged(userID) {
		return nil
	}

	key := weeklyKey(userID, time.Now())
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.ErrCacheFailed("quota commit", err)
	}

	if l.logger != nil {
		l.logger.Info("📊 Quota committed",
			zap.String("user_id", userID.String()),
			zap.Float64("duration_seconds", durationSeconds),
		)
	}
	return nil
}

// Reconcile refunds the charge after a pipeline failure. The decrement is
// bounded at zero server-side.
func (l *Ledger) Reconcile(ctx context.Context, userID uuid.UUID, durationSeconds float64) error {
	if l.IsPrivileged(userID) {
		return nil
	}

	key := weeklyKey(userID, time.Now())
	if _, err := boundedDecrScript.Run(ctx, l.client, []string{key}, 1).Result(); err != nil {
		return apperrors.ErrCacheFailed("quota reconcile", err)
	}

	if l.logger != nil {
		l.logger.Info("📊 Quota reconciled after failure",
			zap.String("user_id", userID.String()),
		)
	}
	return nil
}

// Remaining returns how many uploads the user has left this week. Privileged
// users always see the full limit.
func (l *Ledger) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	if l.cfg.WeeklyUploadLimit <= 0 || l.IsPrivileged(userID) {
		return l.cfg.WeeklyUploadLimit, nil
	}
	count, err := l.client.Get(ctx, weeklyKey(userID, time.Now())).Int()
	if err != nil && err != redis.Nil {
		return 0, apperrors.ErrCacheFailed("quota read", err)
	}
	remaining := l.cfg.WeeklyUploadLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
