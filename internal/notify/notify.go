package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/portwatch/internal/domain"
)

// Notifier delivers an AlertEvent. Delivery problems are reported in the
// returned DispatchResult; Dispatch must not panic or exit the process.
type Notifier interface {
	Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult
}

// Func adapts a plain function to a Notifier.
type Func func(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult

func (f Func) Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult {
	return f(ctx, ev)
}

// Nop accepts every alert and does nothing.
type Nop struct{}

func (Nop) Dispatch(context.Context, domain.AlertEvent) domain.DispatchResult {
	return domain.Delivered("nop")
}

// Multi sends every alert to each notifier in turn. The result is delivered
// only if every notifier delivered it; all errors are kept.
type Multi []Notifier

func (m Multi) Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult {
	var (
		errs  error
		names []string
	)
	for _, n := range m {
		if n == nil {
			continue
		}
		res := n.Dispatch(ctx, ev)
		names = append(names, res.Notifier)
		switch {
		case res.Delivered || res.Skipped:
		case res.Err != nil:
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", res.Notifier, res.Err))
		default:
			errs = multierr.Append(errs, fmt.Errorf("%s: not delivered", res.Notifier))
		}
	}

	name := "multi(" + strings.Join(names, ",") + ")"
	if errs != nil {
		return domain.Failed(name, errs)
	}
	return domain.Delivered(name)
}
