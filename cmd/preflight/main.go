// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/portwatch/internal/config"
	"github.com/hamed0406/portwatch/internal/probe"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	os.Exit(run(ctx, os.Stdout, os.Stderr, nil))
}

// run checks the environment configuration and returns the exit status:
// 0 when portwatch would start, 1 otherwise. Warnings do not fail.
func run(ctx context.Context, stdout, stderr io.Writer, resolver probe.Resolver) int {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	cfg, err := config.FromEnv()
	if err != nil {
		fail(err.Error())
	}
	if cfg.EndpointsFile != "" {
		eps, err := config.LoadEndpoints(cfg.EndpointsFile)
		if err != nil {
			fail(err.Error())
		}
		cfg.Endpoints = eps
	}
	if err := cfg.Validate(); err != nil {
		fail(err.Error())
	} else {
		ok(fmt.Sprintf("%d endpoints, policy attempts=%d delay=%s timeout=%s (worst case %s per endpoint)",
			len(cfg.Endpoints), cfg.Policy.MaxAttempts, cfg.Policy.Delay, cfg.Policy.ProbeTimeout, cfg.Policy.WorstCase()))
	}

	// names that do not resolve now will be reported as dns_failure on every cycle
	for _, ep := range cfg.Endpoints {
		if net.ParseIP(ep.Host) != nil {
			continue
		}
		if st := probe.DiagnoseDNS(ctx, resolver, ep.Host); st.Class != probe.DNSResolves {
			warn(ep.String() + ": " + st.Summary())
		}
	}

	if cfg.Schedule == "" {
		warn("CHECK_SCHEDULE empty; portwatch will run a single cycle.")
	} else {
		ok("CHECK_SCHEDULE=" + cfg.Schedule)
	}

	if cfg.Addr != "" {
		ok("API_ADDR=" + cfg.Addr)
		if len(cfg.AdminAPIKeys) == 0 {
			warn("ADMIN_API_KEYS is empty; POST /api/cycles is open to anyone.")
		}
		if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
			warn("no API keys configured; read routes are open.")
		}
		if len(cfg.CORSOrigins) == 0 {
			warn("ALLOWED_ORIGINS empty; any origin may call the API.")
		}
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; reports and alert history are kept in memory only.")
	} else {
		ok("DATABASE_URL present")
	}

	if !cfg.EmailEnabled() && cfg.WebhookURL == "" {
		warn("no SMTP_ADDR or ALERT_WEBHOOK_URL; alerts go to the console only.")
	}

	if failed {
		return 1
	}
	ok("preflight passed")
	return 0
}
