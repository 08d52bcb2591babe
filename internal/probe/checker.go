package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
)

// Checker turns repeated probes into a single Up/Down verdict using a
// fixed-delay retry budget. A success ends the loop early.
type Checker struct {
	Prober Prober
	Policy domain.RetryPolicy
	Logger *zap.Logger
}

// NewChecker rejects an invalid policy with a configuration error.
func NewChecker(p Prober, policy domain.RetryPolicy, logger *zap.Logger) (*Checker, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{Prober: p, Policy: policy, Logger: logger}, nil
}

// Check probes ep until it answers or the attempt budget is spent. If ctx is
// cancelled first, the verdict stays Unknown. An invalid Policy sends no
// probe and leaves the verdict Unknown with the validation error as message.
func (c *Checker) Check(ctx context.Context, ep domain.Endpoint) domain.Verdict {
	start := time.Now()
	v := domain.Verdict{Endpoint: ep, Status: domain.StatusUnknown}
	log := c.logger().With(zap.Stringer("endpoint", ep))

	if err := c.Policy.Validate(); err != nil {
		v.LastOutcome = domain.ProbeOutcome{Kind: domain.KindOther, ObservedAt: start, Message: err.Error()}
		log.Warn("invalid_retry_policy", zap.Error(err))
		return v
	}
	maxAttempts := c.Policy.MaxAttempts

	for v.AttemptsUsed < maxAttempts {
		if ctx.Err() != nil {
			break
		}

		out := c.Prober.Probe(ctx, ep, c.Policy.ProbeTimeout)
		v.AttemptsUsed++
		v.LastOutcome = out

		if out.Success {
			v.Status = domain.StatusUp
			break
		}
		if out.Kind == domain.KindCanceled {
			break
		}

		log.Debug("probe_failed",
			zap.Int("attempt", v.AttemptsUsed),
			zap.Int("max_attempts", maxAttempts),
			zap.Stringer("kind", out.Kind),
			zap.String("message", out.Message),
		)

		if v.AttemptsUsed == maxAttempts {
			v.Status = domain.StatusDown
			break
		}
		if err := sleep(ctx, c.Policy.Delay); err != nil {
			break
		}
	}

	v.Elapsed = time.Since(start)
	return v
}

func (c *Checker) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
