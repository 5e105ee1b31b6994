package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nextlevelbuilder/vcwarden/internal/channels/discord"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/coordinator"
	"github.com/nextlevelbuilder/vcwarden/internal/httpapi"
	"github.com/nextlevelbuilder/vcwarden/internal/metrics"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/notify"
	"github.com/nextlevelbuilder/vcwarden/internal/ownership"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/autoclaim"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/banrotation"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/cleanup"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/namerotation"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/permits"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/remoteops"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/roleenforce"
	"github.com/nextlevelbuilder/vcwarden/internal/policies/voteban"
	"github.com/nextlevelbuilder/vcwarden/internal/queue"
	"github.com/nextlevelbuilder/vcwarden/internal/router"
	"github.com/nextlevelbuilder/vcwarden/internal/store"
	"github.com/nextlevelbuilder/vcwarden/internal/tasks"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/internal/tracing"
)

func setupLogging(debug bool) {
	logLevel := slog.LevelInfo
	if verbose || debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// builtinModules returns every module in registration order. The registry
// reorders them by declared dependencies.
func builtinModules() []modules.Module {
	return []modules.Module{
		coordinator.New(),
		namerotation.New(),
		banrotation.New(),
		permits.New(),
		roleenforce.New(),
		voteban.New(),
		autoclaim.New(),
		remoteops.New(),
		cleanup.New(),
	}
}

func runService() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		setupLogging(false)
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Current().Debug)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.Current().Discord.Token == "" {
		slog.Error("no discord token configured; set VCWARDEN_DISCORD_TOKEN or run: vcwarden onboard")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Current().Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewWithRegistry(reg)

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	sched := tasks.New()
	defer sched.Close()

	persist := store.NewDebouncer(stores.KV, sched, func() time.Duration { return cfg.Current().Store.FlushDelay() })
	members := ownership.NewMemberConfigs(persist)
	if n, err := members.Load(ctx, stores.KV); err != nil {
		slog.Warn("failed to load member configs", "error", err)
	} else {
		slog.Info("member configs loaded", "count", n)
	}

	dc, err := discord.New(cfg)
	if err != nil {
		slog.Error("failed to create discord channel", "error", err)
		os.Exit(1)
	}

	registry := modules.NewRegistry()
	notices := notify.NewLocal(func() bool { return cfg.Current().Debug })
	q := queue.New(func() config.QueueConfig { return cfg.Current().Queue }, registry,
		queue.WithMetrics(collector),
		queue.WithReservedCommands(cfg.ReservedCommands),
	)
	q.SetSendHandler(dc.Send)

	app := &modules.Context{
		Registry:  registry,
		Queue:     q,
		Ownership: ownership.NewStore(),
		Members:   members,
		Config:    cfg,
		Host:      dc,
		Notify:    notices,
		Tasks:     sched,
		Templates: templates.NewRenderer(cfg),
		Metrics:   collector,
	}

	for _, m := range builtinModules() {
		registry.Register(m)
	}
	registry.Init(ctx, app)
	slog.Info("modules initialized", "order", registry.Order())

	dc.Attach(app, router.New(app))
	if err := dc.Start(ctx); err != nil {
		slog.Error("failed to start discord", "error", err)
		os.Exit(1)
	}
	q.Start(ctx)

	if err := config.Watch(ctx, cfgPath, cfg, func() {
		collector.Reloaded()
		q.Kick()
	}); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	}

	if listen := cfg.Current().HTTP.Listen; listen != "" {
		srv := httpapi.New(app,
			httpapi.WithGatherer(reg),
			httpapi.WithNotices(notices),
			httpapi.WithToken(cfg.Current().HTTP.Token),
		)
		go func() {
			if err := srv.ListenAndServe(ctx, listen); err != nil {
				slog.Error("http api stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	q.Stop()
	registry.Stop()
	if err := dc.Stop(); err != nil {
		slog.Warn("discord close failed", "error", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := persist.Close(flushCtx); err != nil {
		slog.Warn("final store flush failed", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}
	cancel()
	slog.Info("vcwarden stopped")
}
