package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/config"
	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/httpapi"
	apimw "github.com/hamed0406/portwatch/internal/httpapi/middleware"
	"github.com/hamed0406/portwatch/internal/logging"
	"github.com/hamed0406/portwatch/internal/monitor"
	"github.com/hamed0406/portwatch/internal/notify"
	"github.com/hamed0406/portwatch/internal/repo"
	"github.com/hamed0406/portwatch/internal/repo/memory"
	"github.com/hamed0406/portwatch/internal/repo/postgres"
	"github.com/hamed0406/portwatch/internal/scheduler"
)

// Exit codes.
const (
	exitOK     = 0
	exitDown   = 1 // --once: at least one endpoint is down
	exitConfig = 2
	exitFatal  = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	once          bool
	verbose       bool
	endpointsFile string
	schedule      string
	addr          string
	attempts      int
	delay         time.Duration
	timeout       time.Duration
	concurrency   int
	hostname      string
	logDir        string
	logLevel      string
	endpoints     []string
}

func parseFlags(args []string, cfg config.Config, stderr io.Writer) (options, error) {
	fs := pflag.NewFlagSet("portwatch", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: portwatch [flags] [host:port ...]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	o := options{}
	fs.BoolVar(&o.once, "once", false, "run a single cycle and exit (status 1 if anything is down)")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "also write logs to stderr")
	fs.StringVarP(&o.endpointsFile, "endpoints", "f", cfg.EndpointsFile, "YAML file listing endpoints")
	fs.StringVarP(&o.schedule, "schedule", "s", cfg.Schedule, `cron schedule, e.g. "@every 5m" or "*/5 * * * *"`)
	fs.StringVarP(&o.addr, "addr", "a", cfg.Addr, "status API listen address; empty disables it")
	fs.IntVar(&o.attempts, "attempts", cfg.Policy.MaxAttempts, "probe attempts per endpoint per cycle")
	fs.DurationVar(&o.delay, "delay", cfg.Policy.Delay, "pause between failed attempts")
	fs.DurationVar(&o.timeout, "timeout", cfg.Policy.ProbeTimeout, "per-probe connect timeout")
	fs.IntVarP(&o.concurrency, "concurrency", "c", cfg.Concurrency, "endpoints checked in parallel")
	fs.StringVar(&o.hostname, "hostname", cfg.Hostname, "machine name used in alert subjects")
	fs.StringVar(&o.logDir, "log-dir", cfg.LogDir, "directory for the rotated JSON log")
	fs.StringVar(&o.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.endpoints = fs.Args()
	return o, nil
}

// apply overlays flags on the environment configuration. Positional
// endpoints win over the endpoint file, which wins over ENDPOINTS.
func (o options) apply(cfg config.Config) (config.Config, error) {
	cfg.EndpointsFile = o.endpointsFile
	cfg.Schedule = o.schedule
	cfg.Addr = o.addr
	cfg.Policy = domain.RetryPolicy{MaxAttempts: o.attempts, Delay: o.delay, ProbeTimeout: o.timeout}
	cfg.Concurrency = o.concurrency
	cfg.Hostname = o.hostname
	cfg.LogDir = o.logDir
	cfg.LogLevel = o.logLevel
	if o.once {
		cfg.Schedule = ""
	}

	switch {
	case len(o.endpoints) > 0:
		var eps []domain.Endpoint
		for _, raw := range o.endpoints {
			ep, err := domain.ParseEndpoint(raw)
			if err != nil {
				return cfg, err
			}
			eps = append(eps, ep)
		}
		cfg.Endpoints = eps
	case cfg.EndpointsFile != "":
		eps, err := config.LoadEndpoints(cfg.EndpointsFile)
		if err != nil {
			return cfg, err
		}
		cfg.Endpoints = eps
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitConfig
	}
	opts, err := parseFlags(args, cfg, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitConfig
	}
	if cfg, err = opts.apply(cfg); err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitConfig
	}

	logOpts := logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel}
	if opts.verbose {
		logOpts.Console = stderr
	}
	logger, err := logging.NewLogger(logOpts)
	if err != nil {
		fmt.Fprintln(stderr, "logging:", err)
		return exitConfig
	}
	defer func() { _ = logger.Sync() }()

	reports, alerts, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_error", zap.Error(err))
		fmt.Fprintln(stderr, "store:", err)
		return exitFatal
	}
	defer closeStore()

	notifier, err := buildNotifier(cfg, alerts, stdout, logger)
	if err != nil {
		fmt.Fprintln(stderr, "notifier:", err)
		return exitConfig
	}

	runner := monitor.NewRunner(logger, nil, cfg.Concurrency, cfg.Hostname)
	sched, err := scheduler.New(logger, runner, cfg.Schedule)
	if err != nil {
		fmt.Fprintln(stderr, "schedule:", err)
		return exitConfig
	}
	sched.Endpoints = cfg.Endpoints
	sched.Policy = cfg.Policy
	sched.Notifier = notifier
	sched.Reports = reports
	sched.Output = stdout

	logger.Info("portwatch_start",
		zap.Int("endpoints", len(cfg.Endpoints)),
		zap.Int("attempts", cfg.Policy.MaxAttempts),
		zap.Duration("delay", cfg.Policy.Delay),
		zap.Duration("timeout", cfg.Policy.ProbeTimeout),
		zap.Duration("worst_case", cfg.Policy.WorstCase()),
		zap.String("schedule", cfg.Schedule),
	)

	if opts.once {
		report, err := sched.RunOnce(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitConfig
		}
		if report.Count(domain.StatusDown) > 0 {
			return exitDown
		}
		return exitOK
	}

	if cfg.Addr != "" {
		srv := &http.Server{
			Addr: cfg.Addr,
			Handler: httpapi.NewServer(logger, reports, sched, cfg.Endpoints).Router(httpapi.Options{
				Keys:        apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
				CORSOrigins: cfg.CORSOrigins,
				PublicRPM:   cfg.PublicRPM,
				PublicBurst: cfg.PublicBurst,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("api_listen", zap.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api_listen_error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := sched.Run(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	if cfg.Addr != "" && cfg.Schedule == "" {
		// single cycle but the API stays up until interrupted
		<-ctx.Done()
	}
	logger.Info("portwatch_stop")
	return exitOK
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.ReportStore, repo.AlertStore, func(), error) {
	if cfg.DatabaseURL == "" {
		m := memory.New(32)
		return m, m, func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, nil, err
	}
	return pg, pg, pg.Close, nil
}

func buildNotifier(cfg config.Config, alerts repo.AlertStore, stdout io.Writer, logger *zap.Logger) (notify.Notifier, error) {
	chain := notify.Multi{notify.NewConsole(stdout, logger)}
	if cfg.EmailEnabled() {
		e, err := notify.NewEmail(notify.EmailConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.AlertFrom,
			To:       cfg.AlertTo,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, e)
	}
	if wh := notify.NewWebhook(cfg.WebhookURL); wh != nil {
		chain = append(chain, wh)
	}
	if cfg.AlertCooldown > 0 {
		return notify.NewCooldown(chain, alerts, cfg.AlertCooldown, logger), nil
	}
	return chain, nil
}
