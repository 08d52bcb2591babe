package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
)

const (
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// Console prints alerts as single lines and logs them. Writes are
// serialised so concurrent dispatches never interleave.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	color  bool
	logger *zap.Logger
}

func NewConsole(w io.Writer, logger *zap.Logger) *Console {
	if w == nil {
		w = os.Stderr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{w: w, color: IsTerminal(w), logger: logger}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult {
	line := fmt.Sprintf("ALERT %s: %s", ev.Subject(), ev.Message)
	if c.color {
		line = colorRed + line + colorReset
	}

	c.mu.Lock()
	_, err := fmt.Fprintln(c.w, line)
	c.mu.Unlock()

	c.logger.Warn("alert_raised",
		zap.String("endpoint", ev.Endpoint.String()),
		zap.String("message", ev.Message),
		zap.Stringer("kind", ev.Kind),
		zap.String("detail", ev.Detail),
		zap.String("origin", ev.Origin),
	)
	if err != nil {
		return domain.Failed("console", fmt.Errorf("write alert: %w", err))
	}
	return domain.Delivered("console")
}
