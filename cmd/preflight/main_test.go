package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeResolver struct {
	known map[string]bool
}

func (f fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	if f.known[host] {
		return []net.IP{net.IPv4(10, 0, 0, 1)}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (f fakeResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	return host + ".", nil
}

func (f fakeResolver) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

// cleanEnv clears every variable preflight reads so the host environment
// cannot leak into a case.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LOG_DIR", "LOG_LEVEL", "API_ADDR", "DATABASE_URL", "ENDPOINTS", "ENDPOINTS_FILE",
		"RETRY_ATTEMPTS", "RETRY_DELAY_MS", "PROBE_TIMEOUT_MS", "MAX_CONCURRENT_CHECKS",
		"CHECK_SCHEDULE", "ALERT_HOSTNAME", "SMTP_ADDR", "SMTP_USERNAME", "SMTP_PASSWORD",
		"ALERT_FROM", "ALERT_TO", "ALERT_WEBHOOK_URL", "ALERT_COOLDOWN_MS",
		"PUBLIC_API_KEYS", "ADMIN_API_KEYS", "ALLOWED_ORIGINS", "PUBLIC_RPM", "PUBLIC_BURST",
	} {
		t.Setenv(k, "")
	}
}

func runPreflight(t *testing.T) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), &stdout, &stderr, fakeResolver{known: map[string]bool{"svcA": true}})
	return code, stdout.String(), stderr.String()
}

func TestPreflight_ValidConfigPasses(t *testing.T) {
	cleanEnv(t)
	t.Setenv("ENDPOINTS", "svcA:135,10.0.0.2:22")
	t.Setenv("CHECK_SCHEDULE", "@every 5m")

	code, stdout, stderr := runPreflight(t)
	if code != 0 {
		t.Fatalf("want 0, got %d; stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "2 endpoints") || !strings.Contains(stdout, "preflight passed") {
		t.Fatalf("unexpected stdout:\n%s", stdout)
	}
	if strings.Contains(stderr, "svcA:135") {
		t.Fatalf("resolvable host warned about:\n%s", stderr)
	}
}

func TestPreflight_UnresolvableHostWarnsOnly(t *testing.T) {
	cleanEnv(t)
	t.Setenv("ENDPOINTS", "svc.invalid:135")

	code, _, stderr := runPreflight(t)
	if code != 0 {
		t.Fatalf("want 0, got %d", code)
	}
	if !strings.Contains(stderr, "svc.invalid:135: dns=NXDOMAIN") {
		t.Fatalf("missing DNS warning:\n%s", stderr)
	}
}

func TestPreflight_InvalidPolicyFails(t *testing.T) {
	cleanEnv(t)
	t.Setenv("ENDPOINTS", "svcA:135")
	t.Setenv("RETRY_ATTEMPTS", "0")

	code, stdout, stderr := runPreflight(t)
	if code != 1 {
		t.Fatalf("want 1, got %d", code)
	}
	if strings.Contains(stdout, "preflight passed") || !strings.Contains(stderr, "max attempts") {
		t.Fatalf("unexpected output:\nstdout:\n%s\nstderr:\n%s", stdout, stderr)
	}
}

func TestPreflight_EndpointFile(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "eps.yaml")
	if err := os.WriteFile(path, []byte("endpoints:\n  - host: svcA\n    port: 135\n    proto: udp\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENDPOINTS_FILE", path)

	if code, _, _ := runPreflight(t); code != 1 {
		t.Fatalf("unknown YAML field should fail, got %d", code)
	}
}
