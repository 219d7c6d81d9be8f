package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/internal/channels"
	"github.com/nextlevelbuilder/opsclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/opsclaw/internal/channels/slack"
	"github.com/nextlevelbuilder/opsclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/opsclaw/internal/config"
	"github.com/nextlevelbuilder/opsclaw/internal/dispatch"
	"github.com/nextlevelbuilder/opsclaw/internal/events"
	httpapi "github.com/nextlevelbuilder/opsclaw/internal/http"
	"github.com/nextlevelbuilder/opsclaw/internal/reload"
	"github.com/nextlevelbuilder/opsclaw/internal/st2"
	"github.com/nextlevelbuilder/opsclaw/internal/tracing"
)

func runRelay() error {
	setupLogging()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	api, err := connectAPI(ctx, cfg)
	if err != nil {
		slog.Error("st2 authentication failed", "error", err)
		return err
	}

	registry := aliases.NewRegistry()
	sched := reload.New(api.client, registry, reload.Options{
		Interval:             cfg.ReloadInterval(),
		Cron:                 cfg.Reload.Cron,
		WatchPaths:           expandAll(cfg.Reload.WatchPaths),
		ExitOnInitialFailure: cfg.ExitOnInitialFailure(),
	})
	if err := sched.LoadInitial(ctx); err != nil {
		slog.Error("failed to retrieve commands", "api", cfg.ST2.APIURL, "error", err)
		return err
	}

	msgBus := bus.New()
	channelMgr := channels.NewManager(msgBus, channels.ManagerOptions{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		DefaultPlatform:  cfg.Chat.DefaultPlatform,
	})
	if err := registerChannels(cfg, msgBus, channelMgr); err != nil {
		slog.Error("failed to create channels", "error", err)
		return err
	}

	var gate *dispatch.Gate
	if cfg.TwoFactor.Enabled() {
		gate = dispatch.NewGate(cfg.TwoFactorTTL(), cfg.TwoFactor.MaxPending)
		defer gate.Close()
		slog.Info("two-factor confirmation enabled", "action", cfg.TwoFactor.Action, "ttl", cfg.TwoFactorTTL())
	}

	dispatcher := dispatch.New(api.client, msgBus, gate, dispatch.RandomPhrases{}, dispatch.Options{
		Route:           cfg.NotificationRoute(),
		WebUIURL:        cfg.ST2.WebUIURL,
		TwoFactorAction: cfg.TwoFactor.Action,
		QualifyChannels: len(cfg.Channels.EnabledNames()) > 1,
		MaxConcurrent:   cfg.Chat.MaxConcurrentDispatch,
	})

	var confirmer events.Confirmer
	if gate != nil {
		confirmer = dispatcher
	}
	listener := events.NewListener(api.client, channelMgr, confirmer,
		func() { sched.Trigger("alias change") },
		st2.StreamOptions{MaxReconnects: cfg.ST2.StreamMaxReconnects},
	)

	server := httpapi.NewServer(cfg.Gateway.Addr(),
		httpapi.NewWebhookHandler(channelMgr, cfg.Gateway.WebhookPath, channels.NewWebhookRateLimiter(cfg.Gateway.RateLimitRPM)),
		httpapi.NewHealthHandler(httpapi.HealthSources{
			Matchers: registry.Len,
			Pending: func() int {
				if gate == nil {
					return 0
				}
				return gate.Len()
			},
			Channels: channelMgr.GetStatus,
		}, Version),
	)

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		channelMgr.StopAll(stopCtx)
	}()

	reloadSig := make(chan os.Signal, 1)
	if sigs := reloadSignals(); len(sigs) > 0 {
		signal.Notify(reloadSig, sigs...)
		defer signal.Stop(reloadSig)
	}

	consumer := &inboundConsumer{
		router:     msgBus,
		registry:   registry,
		normalizer: channelMgr.Normalizer,
		dispatcher: dispatcher,
		help:       helpCommand(cfg),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	if api.auth != nil {
		g.Go(func() error { return api.auth.Run(gctx, api.token) })
	}
	g.Go(func() error {
		consumer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-reloadSig:
				sched.Trigger(sig.String())
			}
		}
	})

	slog.Info("opsclaw relay running",
		"version", Version,
		"commands", registry.Len(),
		"channels", channelMgr.GetEnabledChannels(),
		"http", cfg.Gateway.Addr(),
	)

	err = g.Wait()
	dispatcher.Wait()
	if err != nil {
		slog.Error("relay stopped", "error", err)
		return err
	}
	slog.Info("relay stopped")
	return nil
}

func registerChannels(cfg *config.Config, router bus.MessageRouter, mgr *channels.Manager) error {
	if cfg.Channels.Slack.Enabled {
		ch, err := slack.New(cfg.Channels.Slack, router)
		if err != nil {
			return err
		}
		mgr.RegisterChannel(ch.Name(), ch)
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, router)
		if err != nil {
			return err
		}
		mgr.RegisterChannel(ch.Name(), ch)
	}
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, router)
		if err != nil {
			return err
		}
		mgr.RegisterChannel(ch.Name(), ch)
	}
	return nil
}

func helpCommand(cfg *config.Config) string {
	if !cfg.HelpEnabled() {
		return ""
	}
	return cfg.Chat.HelpCommand
}

func expandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, config.ExpandHome(p))
	}
	return out
}
