package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/monitor"
	"github.com/hamed0406/portwatch/internal/notify"
	"github.com/hamed0406/portwatch/internal/repo"
)

// Scheduler drives monitor cycles on a cron schedule. Cycles never overlap:
// a cycle requested while another is running waits for it.
type Scheduler struct {
	Logger    *zap.Logger
	Runner    *monitor.Runner
	Notifier  notify.Notifier
	Endpoints []domain.Endpoint
	Policy    domain.RetryPolicy
	Reports   repo.ReportStore // optional
	Output    io.Writer        // status lines; optional

	schedule cron.Schedule
	mu       sync.Mutex
}

// New parses spec with the standard cron parser, which also accepts
// descriptors such as "@every 5m" and "@hourly". An empty spec yields a
// scheduler that only supports RunOnce.
func New(logger *zap.Logger, runner *monitor.Runner, spec string) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{Logger: logger, Runner: runner, Notifier: notify.Nop{}}
	if spec == "" {
		return s, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, domain.ConfigError("schedule %q: %v", spec, err)
	}
	s.schedule = sched
	return s, nil
}

// Run does an immediate cycle, then one per schedule activation until ctx
// is cancelled. Without a schedule it runs exactly one cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.RunOnce(ctx); err != nil {
		return err
	}
	if s.schedule == nil {
		s.Logger.Info("scheduler_single_cycle")
		return nil
	}

	for {
		now := time.Now()
		next := s.schedule.Next(now)
		s.Logger.Debug("scheduler_next_cycle", zap.Time("at", next))

		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			s.Logger.Info("scheduler_stopped")
			return nil
		case <-t.C:
		}
		if _, err := s.RunOnce(ctx); err != nil {
			return err
		}
	}
}

// RunOnce runs a single cycle, prints its status lines and saves the report.
// Store failures are logged; only configuration errors are returned.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.Runner.RunCycle(ctx, s.Endpoints, s.Policy, s.Notifier)
	if err != nil {
		return domain.Report{}, fmt.Errorf("run cycle: %w", err)
	}

	if s.Output != nil {
		for _, line := range report.StatusLines() {
			fmt.Fprintln(s.Output, line)
		}
	}
	if s.Reports != nil {
		// the cycle may have been cut short by ctx; still keep what it found
		if err := s.Reports.Save(context.WithoutCancel(ctx), report); err != nil {
			s.Logger.Warn("report_save_error", zap.Error(err))
		}
	}
	return report, nil
}
