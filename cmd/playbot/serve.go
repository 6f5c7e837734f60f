package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/channel/adapters/discord"
	"github.com/memohai/playbot/internal/channel/adapters/telegram"
	"github.com/memohai/playbot/internal/command"
	"github.com/memohai/playbot/internal/config"
	"github.com/memohai/playbot/internal/decision"
	"github.com/memohai/playbot/internal/handlers"
	channelchecker "github.com/memohai/playbot/internal/healthcheck/checkers/channel"
	mediachecker "github.com/memohai/playbot/internal/healthcheck/checkers/media"
	"github.com/memohai/playbot/internal/jobs"
	"github.com/memohai/playbot/internal/logger"
	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/media/transcode"
	"github.com/memohai/playbot/internal/metrics"
	"github.com/memohai/playbot/internal/pipeline"
	"github.com/memohai/playbot/internal/preview"
	"github.com/memohai/playbot/internal/resolver"
	"github.com/memohai/playbot/internal/resolver/providers"
	"github.com/memohai/playbot/internal/search"
	"github.com/memohai/playbot/internal/server"
	"github.com/memohai/playbot/internal/version"
)

type configFile string

func runServe(path string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	app := fx.New(serveOptions(path))
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func serveOptions(path string) fx.Option {
	return fx.Options(
		fx.Supply(configFile(path)),
		fx.Provide(
			provideConfig,
			provideLogger,
			metrics.New,
			provideChannelRegistry,
			provideChannelManager,
			provideJobRegistry,
			provideResolver,
			provideFetcher,
			provideTempStore,
			provideTranscoder,
			provideSearchClient,
			providePreviewRenderer,
			provideCommandRouter,
			provideDecisionResolver,
			providePipeline,
			providePingHandler,
			provideHealthHandler,
			provideMetricsHandler,
			provideServer,
		),
		fx.Invoke(
			startChannelManager,
			startJobRegistry,
			startTempSweeper,
			startPipeline,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideConfig(path configFile) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(lc fx.Lifecycle, cfg config.Config) (*slog.Logger, error) {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return logger.Close() }})
	return logger.L, nil
}

func provideChannelRegistry(log *slog.Logger) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if err := registry.Register(telegram.NewTelegramAdapter(log)); err != nil {
		return nil, err
	}
	if err := registry.Register(discord.NewDiscordAdapter(log)); err != nil {
		return nil, err
	}
	return registry, nil
}

func provideChannelManager(log *slog.Logger, registry *channel.Registry, cfg config.Config) *channel.Manager {
	return channel.NewManager(log, registry, channelConfigs(cfg))
}

func channelConfigs(cfg config.Config) []channel.ChannelConfig {
	return []channel.ChannelConfig{
		{
			ID:          "telegram",
			ChannelType: telegram.Type,
			Credentials: map[string]any{"botToken": cfg.Telegram.Token},
			Disabled:    !cfg.Telegram.Enabled,
		},
		{
			ID:          "discord",
			ChannelType: discord.Type,
			Credentials: map[string]any{"botToken": cfg.Discord.Token},
			Disabled:    !cfg.Discord.Enabled,
		},
	}
}

func provideJobRegistry(log *slog.Logger, cfg config.Config, m *metrics.Metrics) *jobs.Registry {
	registry := jobs.NewRegistry(log, cfg.Pipeline.JobExpiry, m.JobExpired)
	m.TrackPendingJobs(registry)
	return registry
}

func provideResolver(log *slog.Logger, cfg config.Config, m *metrics.Metrics) (*resolver.Cascade, error) {
	list, err := providers.FromConfig(cfg.Providers, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	return resolver.NewCascade(log, cfg.Pipeline.ProviderTimeout, list, resolver.WithObserver(m.ObserveProvider)), nil
}

func provideFetcher(log *slog.Logger, cfg config.Config) *media.Fetcher {
	return media.NewFetcher(log, nil, cfg.Media.FetchTimeout)
}

func provideTempStore(log *slog.Logger, cfg config.Config) (*media.TempStore, error) {
	return media.NewTempStore(log, cfg.Media.TempDir)
}

func provideTranscoder(log *slog.Logger, cfg config.Config) *transcode.Transcoder {
	return transcode.New(log, cfg.Media.FFmpegPath, cfg.Media.AudioBitrate)
}

func provideSearchClient(log *slog.Logger, cfg config.Config) *search.Client {
	return search.NewClient(log, cfg.Search.Instances, cfg.Search.Timeout)
}

func providePreviewRenderer(log *slog.Logger, fetcher *media.Fetcher) *preview.Renderer {
	return preview.NewRenderer(log, fetcher, preview.DefaultMaxWidth)
}

func provideCommandRouter(cfg config.Config) *command.Router {
	return command.NewRouter(cfg.Command.Prefixes)
}

func provideDecisionResolver(cfg config.Config) *decision.Resolver {
	return decision.NewResolver(cfg.Pipeline.Qualities)
}

type pipelineParams struct {
	fx.In

	Log        *slog.Logger
	Config     config.Config
	Manager    *channel.Manager
	Searcher   *search.Client
	Resolver   *resolver.Cascade
	Fetcher    *media.Fetcher
	Store      *media.TempStore
	Transcoder *transcode.Transcoder
	Jobs       *jobs.Registry
	Decisions  *decision.Resolver
	Previews   *preview.Renderer
	Router     *command.Router
	Metrics    *metrics.Metrics
}

func providePipeline(p pipelineParams) (*pipeline.Service, error) {
	return pipeline.NewService(p.Log, pipeline.Config{
		MaxDuration:    p.Config.Pipeline.MaxDuration,
		JobTimeout:     p.Config.Pipeline.JobTimeout,
		CeilingMB:      p.Config.Media.CeilingMB,
		Transcode:      p.Config.Media.Transcode,
		DefaultQuality: p.Config.Pipeline.DefaultQuality,
	}, pipeline.Deps{
		Transport:  p.Manager,
		Searcher:   p.Searcher,
		Resolver:   p.Resolver,
		Fetcher:    p.Fetcher,
		Store:      p.Store,
		Transcoder: p.Transcoder,
		Jobs:       p.Jobs,
		Decisions:  p.Decisions,
		Previews:   p.Previews,
		Router:     p.Router,
		Recorder:   p.Metrics,
	})
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log, version.Version)
}

func provideHealthHandler(log *slog.Logger, cfg config.Config, manager *channel.Manager, store *media.TempStore) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log,
		channelchecker.NewChecker(log, manager),
		mediachecker.NewChecker(log, store.Dir(), cfg.Media.FFmpegPath, cfg.Media.Transcode),
	)
}

func provideMetricsHandler(m *metrics.Metrics) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(m.Handler())
}

func provideServer(log *slog.Logger, cfg config.Config, ping *handlers.PingHandler, health *handlers.HealthHandler, metricsHandler *handlers.MetricsHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, ping, health, metricsHandler)
}

// Hooks stop in reverse order: the server first, then the pipeline drains
// while the transports are still connected.
func startChannelManager(lc fx.Lifecycle, manager *channel.Manager, svc *pipeline.Service) error {
	if err := manager.Subscribe(svc.HandleInbound); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return manager.Start(ctx) },
		OnStop:  func(stopCtx context.Context) error { cancel(); return manager.Shutdown(stopCtx) },
	})
	return nil
}

func startJobRegistry(lc fx.Lifecycle, registry *jobs.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { registry.Start(); return nil },
		OnStop:  func(ctx context.Context) error { registry.Stop(); return nil },
	})
}

func startTempSweeper(lc fx.Lifecycle, store *media.TempStore, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.StartSweeper(cfg.Media.SweepInterval, cfg.Media.SweepMaxAge)
		},
		OnStop: func(ctx context.Context) error { store.StopSweeper(); return nil },
	})
}

func startPipeline(lc fx.Lifecycle, svc *pipeline.Service) {
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return svc.Shutdown(ctx) }})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	logger.Info("starting playbot", slog.String("version", version.GetInfo()))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
