package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/repo"
)

// Cooldown suppresses repeat alerts for the same endpoint within Window.
// With a zero Window every alert passes through.
type Cooldown struct {
	Inner  Notifier
	Store  repo.AlertStore
	Window time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

func NewCooldown(inner Notifier, store repo.AlertStore, window time.Duration, logger *zap.Logger) *Cooldown {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cooldown{Inner: inner, Store: store, Window: window, Logger: logger, Now: time.Now}
}

func (c *Cooldown) Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult {
	if c.Window <= 0 || c.Store == nil {
		return c.Inner.Dispatch(ctx, ev)
	}
	now := c.Now()
	key := ev.Endpoint.String()

	rec, err := c.Store.Get(ctx, key)
	if err != nil {
		// fail open
		c.Logger.Warn("cooldown_lookup_error", zap.String("endpoint", key), zap.Error(err))
	}
	if rec != nil && rec.LastSentAt != nil && now.Sub(*rec.LastSentAt) < c.Window {
		c.Logger.Info("alert_suppressed",
			zap.String("endpoint", key),
			zap.Time("last_sent_at", *rec.LastSentAt),
			zap.Duration("window", c.Window),
		)
		return domain.DispatchResult{Notifier: "cooldown", Skipped: true}
	}

	res := c.Inner.Dispatch(ctx, ev)
	if res.Delivered {
		if err := c.Store.Set(ctx, key, now); err != nil {
			c.Logger.Warn("cooldown_record_error", zap.String("endpoint", key), zap.Error(err))
		}
	}
	return res
}
