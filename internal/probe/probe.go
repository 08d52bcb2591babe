package probe

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/hamed0406/portwatch/internal/domain"
)

// Prober performs one bounded connection attempt. Implementations never retry.
type Prober interface {
	Probe(ctx context.Context, ep domain.Endpoint, timeout time.Duration) domain.ProbeOutcome
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPProber checks reachability by opening and closing a TCP connection.
type TCPProber struct {
	Dial DialFunc
	Now  func() time.Time
}

func NewTCPProber() *TCPProber {
	var d net.Dialer
	return &TCPProber{Dial: d.DialContext, Now: time.Now}
}

func (p *TCPProber) Probe(ctx context.Context, ep domain.Endpoint, timeout time.Duration) domain.ProbeOutcome {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	dial := p.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := now()
	conn, err := dial(dctx, "tcp", ep.String())
	out := domain.ProbeOutcome{
		ObservedAt: start.UTC(),
		Latency:    now().Sub(start),
	}
	if err == nil {
		_ = conn.Close()
		out.Success = true
		out.Kind = domain.KindNone
		return out
	}

	out.Message = err.Error()
	switch {
	case ctx.Err() != nil:
		// the cycle was cancelled, not the attempt timing out
		out.Kind = domain.KindCanceled
		out.Message = "probe aborted"
	default:
		out.Kind = Classify(err)
		if out.Kind == domain.KindOther && errors.Is(dctx.Err(), context.DeadlineExceeded) {
			out.Kind = domain.KindTimeout
		}
		if out.Kind == domain.KindTimeout {
			out.Message = "probe timed out after " + timeout.String()
		}
	}
	return out
}

// Classify maps a dial error onto an ErrorKind.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindNone
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.KindDNSFailure
	}
	if errors.Is(err, context.Canceled) {
		return domain.KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.KindRefused
	}
	return domain.KindOther
}
