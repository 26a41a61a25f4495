package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/miradorstack/marker-engine/internal/activation"
	"github.com/miradorstack/marker-engine/internal/cache"
	"github.com/miradorstack/marker-engine/internal/config"
	"github.com/miradorstack/marker-engine/internal/engine"
	"github.com/miradorstack/marker-engine/internal/history"
	"github.com/miradorstack/marker-engine/internal/lexicon"
	"github.com/miradorstack/marker-engine/internal/markers"
	"github.com/miradorstack/marker-engine/internal/metrics"
	"github.com/miradorstack/marker-engine/internal/nlp"
	"github.com/miradorstack/marker-engine/internal/repo"
	"github.com/miradorstack/marker-engine/internal/scoring"
	"github.com/miradorstack/marker-engine/internal/services"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// runtime holds every component wired from a Config.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *repo.Store
	loader   repo.Loader
	pipeline *engine.Pipeline
	service  *services.AnalysisService
	closers  []io.Closer
}

func loadConfig(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, utils.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.JSON), nil
}

// newRuntime wires the analysis stack. ctx bounds background janitors.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	lex, err := lexicon.Load(cfg.Lexicon.Path)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	index := lexicon.NewIndex(lex)

	rt.store = repo.NewStore(logger)
	if cfg.Markers.SQLitePath != "" {
		db, err := repo.OpenSQLiteStore(ctx, cfg.Markers.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db)
		rt.loader = db
	} else {
		rt.loader = repo.YAMLSource{Path: cfg.Markers.Path}
	}
	count, err := rt.store.Reload(ctx, rt.loader)
	if err != nil {
		if !errors.Is(err, utils.ErrConfiguration) {
			rt.Close()
			return nil, err
		}
		logger.Warn("some marker definitions were rejected", slog.Any("error", err))
	}
	metrics.SetCatalogSize(count)

	enricher := newEnricher(cfg.NLP, index, logger)
	provider, cacheType := newCache(ctx, cfg.Cache, logger)
	rt.closers = append(rt.closers, provider)

	opts := engine.Options{
		Cache:         provider,
		CacheTTL:      cfg.Cache.AnalysisTTL,
		MaxTextLength: cfg.Pipeline.MaxTextLength,
		BatchWorkers:  cfg.Pipeline.BatchWorkers,
	}
	if cfg.History.Enabled {
		var store history.Store = history.NewMemoryStore(cfg.History.Limit)
		if cfg.History.SQLitePath != "" {
			db, err := history.OpenSQLiteStore(ctx, cfg.History.SQLitePath, cfg.History.Limit, logger)
			if err != nil {
				rt.Close()
				return nil, err
			}
			store = db
		}
		rt.closers = append(rt.closers, store)
		opts.History = store
		opts.Markers = rt.store
		opts.Scorer = scoring.NewAggregator(scoring.Defaults{
			Scoring: cfg.Scoring.Defaults,
			Windows: cfg.Scoring.Windows,
		}, logger)
	}

	scanner := markers.NewService(rt.store, activation.NewEngine(index, logger), logger)
	rt.pipeline = engine.NewPipeline(logger, scanner, enricher, opts)
	rt.service = services.NewAnalysisService(logger, rt.pipeline, rt.store, rt.loader, services.CacheInfo{
		Enabled: cfg.Cache.Enabled,
		Type:    cacheType,
	})

	logger.Info("marker engine ready",
		slog.Int("markers", count),
		slog.String("nlp", enricher.Name()),
		slog.String("cache", cacheType),
		slog.Bool("history", cfg.History.Enabled),
	)
	return rt, nil
}

func newEnricher(cfg config.NLPConfig, index *lexicon.Index, logger *slog.Logger) nlp.Enricher {
	switch cfg.Mode {
	case config.NLPModeRemote:
		return nlp.NewHTTPEnricher(cfg.Endpoint, cfg.Language, cfg.Timeout, logger)
	case config.NLPModeNone:
		return nlp.Unavailable{}
	default:
		return nlp.NewBasicEnricher(index)
	}
}

// newCache builds the analysis cache. An unreachable Valkey degrades to the local
// layer, or to no cache at all.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cache.Provider, string) {
	if !cfg.Enabled {
		return cache.NoopProvider{}, "none"
	}

	local := func() *cache.MemoryProvider {
		provider := cache.NewMemoryProvider()
		provider.StartJanitor(ctx, time.Minute)
		return provider
	}
	if cfg.Mode == config.CacheModeMemory {
		return local(), config.CacheModeMemory
	}

	shared, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		KeyPrefix:    cfg.KeyPrefix,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable", slog.Any("error", err))
		if cfg.Mode == config.CacheModeLayered {
			return local(), config.CacheModeMemory
		}
		return cache.NoopProvider{}, "none"
	}
	if cfg.Mode == config.CacheModeLayered {
		return cache.NewLayeredProvider(local(), shared, cfg.LocalTTL), config.CacheModeLayered
	}
	return shared, config.CacheModeValkey
}

// Close releases stores and caches in reverse order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.logger.Warn("close component", slog.Any("error", err))
		}
	}
	rt.closers = nil
}
