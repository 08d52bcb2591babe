package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/notify"
	"github.com/hamed0406/portwatch/internal/probe"
)

// Runner checks a list of endpoints once and raises an alert for every
// endpoint found down. It does not schedule itself.
type Runner struct {
	Logger      *zap.Logger
	Prober      probe.Prober
	Resolver    probe.Resolver
	Concurrency int
	Origin      string
	Now         func() time.Time
}

func NewRunner(logger *zap.Logger, prober probe.Prober, concurrency int, origin string) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prober == nil {
		prober = probe.NewTCPProber()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if origin == "" {
		origin = LocalHostname()
	}
	return &Runner{
		Logger:      logger,
		Prober:      prober,
		Concurrency: concurrency,
		Origin:      origin,
		Now:         time.Now,
	}
}

// LocalHostname is the name used in alert subjects.
func LocalHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// RunCycle checks every endpoint under policy and returns a Report in input
// order. An error is returned only for invalid configuration, before any
// probe is sent. Cancelling ctx leaves unfinished endpoints Unknown.
func (r *Runner) RunCycle(ctx context.Context, endpoints []domain.Endpoint, policy domain.RetryPolicy, n notify.Notifier) (domain.Report, error) {
	checker, err := probe.NewChecker(r.Prober, policy, r.Logger)
	if err != nil {
		return domain.Report{}, err
	}
	if err := domain.ValidateEndpoints(endpoints); err != nil {
		return domain.Report{}, fmt.Errorf("endpoints: %w", err)
	}
	if n == nil {
		n = notify.Nop{}
	}

	now := r.Now
	if now == nil {
		now = time.Now
	}
	report := domain.Report{
		StartedAt: now().UTC(),
		Entries:   make([]domain.Entry, len(endpoints)),
	}
	for i, ep := range endpoints {
		report.Entries[i].Verdict = domain.Verdict{Endpoint: ep, Status: domain.StatusUnknown}
	}

	var g errgroup.Group
	g.SetLimit(max(r.Concurrency, 1))
	for i, ep := range endpoints {
		if ctx.Err() != nil {
			break
		}
		i, ep := i, ep
		g.Go(func() error {
			// each worker owns exactly one slot
			report.Entries[i] = r.checkOne(ctx, checker, ep, n)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = now().UTC()
	r.Logger.Info("cycle_finished",
		zap.Int("endpoints", report.Len()),
		zap.Int("up", report.Count(domain.StatusUp)),
		zap.Int("down", report.Count(domain.StatusDown)),
		zap.Int("unknown", report.Count(domain.StatusUnknown)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (r *Runner) checkOne(ctx context.Context, checker *probe.Checker, ep domain.Endpoint, n notify.Notifier) domain.Entry {
	v := checker.Check(ctx, ep)
	entry := domain.Entry{Verdict: v}

	fields := []zap.Field{
		zap.String("endpoint", ep.String()),
		zap.Stringer("status", v.Status),
		zap.Int("attempts", v.AttemptsUsed),
		zap.Stringer("kind", v.LastOutcome.Kind),
		zap.Duration("elapsed", v.Elapsed),
	}
	if v.Status != domain.StatusDown {
		r.Logger.Info("endpoint_checked", fields...)
		return entry
	}

	if v.LastOutcome.Kind == domain.KindDNSFailure {
		// likely misconfiguration rather than an outage
		diag := probe.DiagnoseDNS(ctx, r.Resolver, ep.Host)
		v.LastOutcome.Message = diag.Summary() + ": " + v.LastOutcome.Message
		entry.Verdict = v
		fields = append(fields, zap.String("dns_class", diag.Class), zap.Strings("nameservers", diag.Nameservers))
	}
	r.Logger.Warn("endpoint_down", append(fields, zap.String("message", v.LastOutcome.Message))...)

	now := r.Now
	if now == nil {
		now = time.Now
	}
	ev := domain.NewAlertEvent(v, r.Origin, now().UTC())
	entry.Alert = &ev

	res := dispatch(ctx, n, ev)
	entry.Dispatch = &res
	if res.Err != nil || (!res.Delivered && !res.Skipped) {
		r.Logger.Warn("dispatch_failed",
			zap.String("endpoint", ep.String()),
			zap.String("notifier", res.Notifier),
			zap.Error(res.Err),
		)
	}
	return entry
}

// dispatch turns a panicking notifier into a failed result.
func dispatch(ctx context.Context, n notify.Notifier, ev domain.AlertEvent) (res domain.DispatchResult) {
	defer func() {
		if p := recover(); p != nil {
			res = domain.Failed(fmt.Sprintf("%T", n), fmt.Errorf("notifier panic: %v", p))
		}
	}()
	return n.Dispatch(ctx, ev)
}
