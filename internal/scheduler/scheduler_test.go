package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/monitor"
	"github.com/hamed0406/portwatch/internal/repo/memory"
)

// --- fakes ---

type fakeProber struct {
	calls atomic.Int64
	down  map[string]bool
}

func (f *fakeProber) Probe(ctx context.Context, ep domain.Endpoint, timeout time.Duration) domain.ProbeOutcome {
	f.calls.Add(1)
	if f.down[ep.Host] {
		return domain.ProbeOutcome{Kind: domain.KindRefused, ObservedAt: time.Now(), Message: "connection refused"}
	}
	return domain.ProbeOutcome{Success: true, ObservedAt: time.Now()}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func newScheduler(t *testing.T, spec string, p *fakeProber) *Scheduler {
	t.Helper()
	r := monitor.NewRunner(zap.NewNop(), p, 2, "watcher01")
	s, err := New(zap.NewNop(), r, spec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Endpoints = []domain.Endpoint{{Host: "svcA", Port: 135}, {Host: "svcB", Port: 135}}
	s.Policy = domain.RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, ProbeTimeout: 10 * time.Millisecond}
	return s
}

// --- tests ---

func TestRunOnce_PrintsStatusLinesAndSaves(t *testing.T) {
	p := &fakeProber{down: map[string]bool{"svcB": true}}
	s := newScheduler(t, "", p)
	var out bytes.Buffer
	store := memory.New(5)
	s.Output = &out
	s.Reports = store

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got, want := out.String(), "svcA:135 is OK\nsvcB:135 is down\n"; got != want {
		t.Fatalf("output %q, want %q", got, want)
	}
	if len(report.Alerts()) != 1 {
		t.Fatalf("want one alert, got %d", len(report.Alerts()))
	}

	latest, err := store.Latest(context.Background())
	if err != nil || latest == nil {
		t.Fatalf("latest: %v %v", latest, err)
	}
	if v, ok := latest.Verdict(domain.Endpoint{Host: "svcB", Port: 135}); !ok || v.Status != domain.StatusDown {
		t.Fatalf("saved report lost svcB verdict: %+v", latest)
	}
}

func TestRun_WithoutScheduleRunsOneCycle(t *testing.T) {
	p := &fakeProber{}
	s := newScheduler(t, "", p)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("want 2 probes, got %d", p.calls.Load())
	}
}

func TestRun_RepeatsOnScheduleUntilCancelled(t *testing.T) {
	p := &fakeProber{}
	s := newScheduler(t, "@every 1s", p)
	out := &lockedBuffer{}
	s.Output = out

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if n := strings.Count(out.String(), "svcA:135 is OK"); n < 2 {
		t.Fatalf("want at least 2 cycles, got %d:\n%s", n, out.String())
	}
}

func TestNew_BadScheduleIsConfigurationError(t *testing.T) {
	_, err := New(nil, monitor.NewRunner(nil, &fakeProber{}, 1, "x"), "every five minutes")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestRunOnce_InvalidPolicyIsReturned(t *testing.T) {
	s := newScheduler(t, "", &fakeProber{})
	s.Policy.MaxAttempts = 0
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}
