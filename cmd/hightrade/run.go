package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"hightrade/internal/alert"
	"hightrade/internal/command"
	"hightrade/internal/config"
	"hightrade/internal/domain"
	"hightrade/internal/exit"
	"hightrade/internal/ledger"
	"hightrade/internal/logging"
	"hightrade/internal/market"
	"hightrade/internal/news"
	"hightrade/internal/news/dedup"
	"hightrade/internal/observability"
	"hightrade/internal/orchestrator"
	"hightrade/internal/ratelimit"
	"hightrade/internal/signal"
	"hightrade/internal/storage"
	"hightrade/internal/storage/memory"
	"hightrade/internal/storage/postgres"
	"hightrade/internal/storage/sqlite"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel)
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

func runDaemon(parent context.Context, cfg *config.Config) error {
	ctx, stop := ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter := ratelimit.New(limiterConfig(cfg))
	classifier := news.NewClassifier(cfg.News)

	aggregator := news.NewAggregator(news.Options{
		Sources:    newsSources(cfg),
		Pacer:      limiter,
		Dedup:      dedup.New(cfg.Dedup.SimilarityThreshold),
		Classifier: classifier,
		Signals:    signalReader{store.NewsSignals()},
		CacheTTL:   time.Duration(cfg.News.CacheTTLMinutes) * time.Minute,
		MaxRetries: cfg.News.MaxFetchRetries,
	})

	marketClient := market.NewClient(market.ClientOptions{
		Provider: market.NewAlphaVantageProvider(
			cfg.Market.Endpoint,
			os.Getenv(cfg.Market.APIKeyEnv),
			time.Duration(cfg.News.FetchTimeoutSec)*time.Second,
		),
		Pacer:      limiter,
		LimiterKey: cfg.Market.RateLimiterKey,
	})

	led := ledger.New(ledger.Options{
		Positions:   store.Positions(),
		Decisions:   store.Decisions(),
		Mode:        ledger.BrokerMode(cfg.BrokerMode),
		DecisionTTL: time.Duration(cfg.Entries.DecisionTTLMin) * time.Minute,
	})

	queue, err := command.NewQueue(commandDir(cfg))
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics("hightrade")
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
		defer srv.Close()
	}

	orch := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Store:    store,
		News:     aggregator,
		Market:   marketClient,
		Scorer:   signal.NewScorer(cfg.Defcon.Weights),
		Exits:    exit.NewEvaluator(cfg.Exit),
		Ledger:   led,
		Alerts:   alertRouter(cfg),
		Queue:    queue,
		Poller:   command.NewPoller(queue, 16),
		Spill:    storage.NewSpillWriter(cfg.StateDir),
		Metrics:  metrics,
		Interval: cfg.CycleInterval(),
	})

	log.Info().Str("broker_mode", cfg.BrokerMode).
		Str("storage", cfg.Storage.Driver).
		Dur("interval", cfg.CycleInterval()).Msg("hightrade starting")
	return orch.Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "postgres":
		return postgres.NewStore(ctx, cfg.Storage.DSN)
	case "sqlite":
		path := cfg.Storage.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.StateDir, path)
		}
		return sqlite.NewStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func limiterConfig(cfg *config.Config) map[string]ratelimit.SourceConfig {
	out := make(map[string]ratelimit.SourceConfig, len(cfg.RateLimits))
	for name, rl := range cfg.RateLimits {
		out[name] = ratelimit.SourceConfig{
			RPM:         rl.RPM,
			MinInterval: time.Duration(rl.MinMS) * time.Millisecond,
		}
	}
	return out
}

func newsSources(cfg *config.Config) []news.Source {
	timeout := time.Duration(cfg.News.FetchTimeoutSec) * time.Second
	var sources []news.Source
	for name, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}
		switch sc.Kind {
		case "alpha_vantage":
			sources = append(sources, news.NewAlphaVantageSource(news.AlphaVantageOptions{
				Name:       name,
				Endpoint:   sc.Endpoint,
				APIKey:     sc.APIKey,
				LimiterKey: sc.RateLimiterKey,
				Timeout:    timeout,
			}))
		case "rss":
			sources = append(sources, news.NewRSSSource(news.RSSOptions{
				Name:       name,
				Endpoint:   sc.Endpoint,
				LimiterKey: sc.RateLimiterKey,
				Timeout:    timeout,
			}))
		default:
			log.Warn().Str("source", name).Str("kind", sc.Kind).Msg("unknown source kind, skipping")
		}
	}
	return sources
}

func alertRouter(cfg *config.Config) *alert.Router {
	opts := alert.Options{SilentEvents: cfg.Alerts.Silent.Events}
	if cfg.Alerts.Urgent.Endpoint != "" {
		opts.Urgent = alert.NewWebhookTransport(cfg.Alerts.Urgent.Endpoint, nil)
	}
	if cfg.Alerts.Silent.Endpoint != "" {
		opts.Silent = alert.NewWebhookTransport(cfg.Alerts.Silent.Endpoint, nil)
	}
	return alert.NewRouter(opts)
}

func commandDir(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "commands")
}

// signalReader adapts the news-signal store to the aggregator's novelty
// baseline reader.
type signalReader struct {
	store storage.NewsSignalStore
}

func (r signalReader) LatestNewsSignal(ctx context.Context) (*domain.NewsSignal, error) {
	return r.store.Latest(ctx)
}
