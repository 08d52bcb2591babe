package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/hamed0406/portwatch/internal/domain"
)

func listen(t *testing.T) (net.Listener, domain.Endpoint) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return ln, domain.Endpoint{Host: host, Port: port}
}

// closedEndpoint returns a loopback port that nothing listens on.
func closedEndpoint(t *testing.T) domain.Endpoint {
	t.Helper()
	ln, ep := listen(t)
	ln.Close()
	return ep
}

type trackedConn struct {
	net.Conn
	closed *int32
}

func (c trackedConn) Close() error {
	atomic.AddInt32(c.closed, 1)
	return nil
}

func TestTCPProber_Success(t *testing.T) {
	ln, ep := listen(t)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	out := NewTCPProber().Probe(context.Background(), ep, 2*time.Second)
	if !out.Success || out.Kind != domain.KindNone {
		t.Fatalf("want success, got %+v", out)
	}
	if out.ObservedAt.IsZero() {
		t.Fatal("observed_at not set")
	}
}

func TestTCPProber_Refused(t *testing.T) {
	ep := closedEndpoint(t)
	out := NewTCPProber().Probe(context.Background(), ep, 2*time.Second)
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.Kind != domain.KindRefused {
		t.Fatalf("want refused, got %s (%s)", out.Kind, out.Message)
	}
}

func TestTCPProber_ClosesConnection(t *testing.T) {
	var closed int32
	p := &TCPProber{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		client, server := net.Pipe()
		server.Close()
		return trackedConn{Conn: client, closed: &closed}, nil
	}}
	ep := domain.Endpoint{Host: "svcA", Port: 135}
	for i := 0; i < 5; i++ {
		if out := p.Probe(context.Background(), ep, time.Second); !out.Success {
			t.Fatalf("attempt %d: %+v", i, out)
		}
	}
	if got := atomic.LoadInt32(&closed); got != 5 {
		t.Fatalf("want 5 closes, got %d", got)
	}
}

func TestTCPProber_Timeout(t *testing.T) {
	p := &TCPProber{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		<-ctx.Done()
		return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
	}}
	start := time.Now()
	out := p.Probe(context.Background(), domain.Endpoint{Host: "10.255.255.1", Port: 135}, 50*time.Millisecond)
	if out.Kind != domain.KindTimeout {
		t.Fatalf("want timeout, got %s (%s)", out.Kind, out.Message)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("probe exceeded its timeout: %s", time.Since(start))
	}
}

func TestTCPProber_ParentCancelIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &TCPProber{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	out := p.Probe(ctx, domain.Endpoint{Host: "svcA", Port: 135}, 5*time.Second)
	if out.Kind != domain.KindCanceled {
		t.Fatalf("want canceled, got %s", out.Kind)
	}
}

func TestTCPProber_DNSFailure(t *testing.T) {
	p := &TCPProber{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: &net.DNSError{Err: "no such host", Name: "svc.invalid", IsNotFound: true}}
	}}
	out := p.Probe(context.Background(), domain.Endpoint{Host: "svc.invalid", Port: 135}, time.Second)
	if out.Kind != domain.KindDNSFailure {
		t.Fatalf("want dns failure, got %s", out.Kind)
	}
	if out.Message == "" {
		t.Fatal("want error detail preserved")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, domain.KindNone},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, domain.KindRefused},
		{"dns", fmt.Errorf("wrapped: %w", &net.DNSError{Err: "no such host", IsNotFound: true}), domain.KindDNSFailure},
		{"dns lookup timed out", &net.DNSError{Err: "i/o timeout", Name: "svc.example", IsTimeout: true}, domain.KindDNSFailure},
		{"deadline", context.DeadlineExceeded, domain.KindTimeout},
		{"canceled", context.Canceled, domain.KindCanceled},
		{"other", errors.New("network is unreachable"), domain.KindOther},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}
