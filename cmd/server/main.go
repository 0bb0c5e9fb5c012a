package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/lumenforge/lumenforge-web/internal/cfg"
	"github.com/lumenforge/lumenforge-web/internal/forms"
	"github.com/lumenforge/lumenforge-web/internal/health"
	"github.com/lumenforge/lumenforge-web/internal/httpmw"
	"github.com/lumenforge/lumenforge-web/internal/httpserver"
	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/metrics"
	"github.com/lumenforge/lumenforge-web/internal/opshttp"
	"github.com/lumenforge/lumenforge-web/internal/otelx"
	"github.com/lumenforge/lumenforge-web/internal/prof"
	"github.com/lumenforge/lumenforge-web/internal/ratelimit"
	"github.com/lumenforge/lumenforge-web/internal/secrets"
	"github.com/lumenforge/lumenforge-web/internal/sitehandler"
	v "github.com/lumenforge/lumenforge-web/internal/version"
	"github.com/lumenforge/lumenforge-web/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (build_id=%s, build_date=%s, go=%s)\n",
			v.AppName, vi.String(), vi.BuildId, vi.BuildDate, vi.GoVersion)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix LFWEB_
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog, kept so a buffered backend gets flushed on exit
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"ratelimit_backend", conf.RateLimitBackend,
		"ratelimit_max_keys", conf.RateLimitMaxKeys,
		"limits_file", conf.LimitsFile,
		"smtp_host", conf.SMTPHost,
		"archive_s3_bucket", conf.ArchiveS3Bucket,
	)

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		os.Exit(1)
	}

	// resolve ssm: references before anything dials out with them
	resolver := secrets.NewResolver(ssm.NewFromConfig(awsCfg))
	if err := resolver.ResolveAll(ctx, &conf.RedisPassword, &conf.SMTPPassword, &conf.PyroPassword); err != nil {
		L.Error(ctx, err, "failed to resolve secrets")
		os.Exit(1)
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:           conf.EnablePyroscope,
		AppName:           v.AppName,
		ServerAddress:     conf.PyroServer,
		BasicAuthUser:     conf.PyroUser,
		BasicAuthPassword: conf.PyroPassword,
		TenantID:          conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we only export to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	readiness := []health.Probe{gate.Probe()}

	tiers := ratelimit.Tiers()
	if conf.LimitsFile != "" {
		if tiers, err = ratelimit.LoadTiers(conf.LimitsFile); err != nil {
			L.Error(ctx, err, "failed to load limits file", "path", conf.LimitsFile)
			os.Exit(1)
		}
	}

	limiters, err := newLimiters(ctx, L, conf, m, tiers)
	if err != nil {
		L.Error(ctx, err, "failed to set up rate limiting")
		os.Exit(1)
	}
	defer limiters.Close()
	if limiters.ready != nil {
		readiness = append(readiness, limiters.ready)
	}

	sink, err := newSink(ctx, L, conf, awsCfg, m, vi)
	if err != nil {
		L.Error(ctx, err, "failed to set up submission delivery")
		os.Exit(1)
	}
	L.Info(ctx, "submission delivery configured", "sinks", sink.Sinks())

	formsAPI, err := forms.NewAPI(forms.Options{
		Logger:  L,
		Limiter: limiters.form,
		Sink:    sink,
		OnOutcome: func(kind, outcome string) {
			m.IncFormSubmission(kind, outcome)
			if outcome == forms.OutcomeBot {
				m.IncBotDetection()
			}
		},
		OnBotRule: m.IncBotRule,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create forms API")
		os.Exit(1)
	}

	// setup site handler that serves the embedded SPA
	siteHandler, err := sitehandler.New(sitehandler.Options{FS: webassets.DistFS()})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	readyProbe := health.All(readiness...)

	// start site http server
	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:         L,
		Port:           conf.HTTPPort,
		UseRecoverMW:   true,
		OnPanic:        m.IncHttpPanic,
		MetricsMW:      m.Middleware,
		Health:         health.Fixed(true, ""),
		Readiness:      readyProbe,
		ClientIPOpts:   httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		APIRoutes:      formsAPI.RegisterRoutes,
		APIRateLimitMW: limiters.api.Middleware(nil),
		SiteHandler:    siteHandler,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin/ops listener for metrics, health checks, rate limit resets and pprof
	// requests from public addresses are rejected in case the sg is ever opened up
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		Version:      v.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readyProbe,
		Limiters:     limiters.admin(),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// worst case systemd kills the process after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer drains us
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining for 30s")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit is Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
