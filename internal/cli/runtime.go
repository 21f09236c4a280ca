package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"btstrm/internal/app"
	"btstrm/internal/cache"
	"btstrm/internal/history"
	"btstrm/internal/locator"
	"btstrm/internal/metrics"
	"btstrm/internal/mount"
	"btstrm/internal/providers/tmdb"
	"btstrm/internal/providers/torznab"
	"btstrm/internal/search"
	"btstrm/internal/telemetry"
)

const (
	connectTimeout   = 3 * time.Second
	titleCachePrefix = "btstrm:tmdb:"
	titleCacheTTL    = 7 * 24 * time.Hour
)

// runtime holds everything a command needs, built once from Config.
type runtime struct {
	cfg    app.Config
	logger *slog.Logger
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	registry *prometheus.Registry
	tracing  telemetry.ShutdownFunc

	jackett *torznab.Client
	redis   *redis.Client

	redisOnce sync.Once
	redisUp   bool
}

func newRuntime(ctx context.Context, opts *options, stdout, stderr io.Writer) (*runtime, error) {
	cfg, err := app.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.keep {
		cfg.Mount.Keep = true
	}
	if opts.noCache {
		cfg.Cache.Disabled = true
	}

	logger := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	tracing, err := telemetry.Init(ctx, "btstrm", Version)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		fs:       afero.NewOsFs(),
		stdout:   stdout,
		stderr:   stderr,
		registry: registry,
		tracing:  tracing,
		jackett: torznab.New(torznab.Config{
			BaseURL:       cfg.JackettURL,
			APIKey:        cfg.JackettAPIKey,
			UserAgent:     cfg.UserAgent,
			RatePerSecond: cfg.Search.RatePerSecond,
		}),
	}

	if redisURL := strings.TrimSpace(cfg.Cache.RedisURL); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using in-memory cache", slog.String("error", err.Error()))
		} else {
			rt.redis = redis.NewClient(redisOpts)
		}
	}
	return rt, nil
}

// close flushes telemetry and metrics. It runs on every exit path.
func (rt *runtime) close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.tracing != nil {
		if err := rt.tracing(ctx); err != nil {
			rt.logger.Debug("tracing shutdown", slog.String("error", err.Error()))
		}
	}
	if err := metrics.WriteTextfile(rt.cfg.Metrics.Textfile, rt.registry); err != nil {
		rt.logger.Warn("metrics textfile write failed", slog.String("error", err.Error()))
	}
}

// reachableRedis returns the Redis client if it answered a ping, nil otherwise.
// The ping happens once per run.
func (rt *runtime) reachableRedis(ctx context.Context) *redis.Client {
	if rt.redis == nil {
		return nil
	}
	rt.redisOnce.Do(func() {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := rt.redis.Ping(pingCtx).Err(); err != nil {
			rt.logger.Warn("redis unreachable, using in-memory cache", slog.String("error", err.Error()))
			return
		}
		rt.redisUp = true
	})
	if !rt.redisUp {
		return nil
	}
	return rt.redis
}

// resultCache picks Redis when it answers, memory otherwise, nothing when disabled.
func (rt *runtime) resultCache(ctx context.Context) search.ResultCache {
	if rt.cfg.Cache.Disabled {
		return nil
	}
	if client := rt.reachableRedis(ctx); client != nil {
		return search.NewRedisCache(client, rt.cfg.Cache.TTL, rt.logger)
	}
	return search.NewMemoryCache(0, rt.cfg.Cache.TTL)
}

func (rt *runtime) dispatcher(ctx context.Context, client *search.IndexerClient, progress search.ProgressFunc) *search.Dispatcher {
	return search.NewDispatcher(client,
		search.WithConcurrency(rt.cfg.Search.Concurrency),
		search.WithTimeout(rt.cfg.Search.RequestTimeout),
		search.WithCache(rt.resultCache(ctx)),
		search.WithProgress(progress),
		search.WithLogger(rt.logger),
	)
}

// reportIndexerHealth logs the indexers that failed during a dispatch.
func (rt *runtime) reportIndexerHealth(client *search.IndexerClient) {
	var failed []string
	for _, status := range client.Health() {
		if status.ConsecutiveFailures == 0 {
			continue
		}
		failed = append(failed, string(status.Indexer))
		rt.logger.Debug("indexer failed",
			slog.String("indexer", string(status.Indexer)),
			slog.String("kind", status.LastKind.String()),
			slog.String("error", status.LastError),
		)
	}
	if len(failed) > 0 {
		rt.logger.Info("some indexers returned nothing",
			slog.Int("failed", len(failed)),
			slog.String("indexers", strings.Join(failed, ",")),
		)
	}
}

// searchProgress renders the fan-out as a one-line counter on stderr.
func (rt *runtime) searchProgress() search.ProgressFunc {
	var mu sync.Mutex
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(rt.stderr, "\rSearching torrents: %d/%d", done, total)
		if done == total {
			_, _ = fmt.Fprintln(rt.stderr)
		}
	}
}

// historyStore connects to MongoDB when configured and falls back to NopStore
// when it cannot.
func (rt *runtime) historyStore(ctx context.Context) history.Store {
	uri := strings.TrimSpace(rt.cfg.History.MongoURI)
	if uri == "" {
		return history.NopStore{}
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	store, err := history.Connect(connectCtx, uri, rt.cfg.History.Database)
	if err != nil {
		rt.logger.Warn("history store unavailable", slog.String("error", err.Error()))
		return history.NopStore{}
	}
	if err := store.EnsureIndexes(connectCtx); err != nil {
		rt.logger.Debug("history ensure indexes failed", slog.String("error", err.Error()))
	}
	return store
}

func (rt *runtime) resolver() *locator.Resolver {
	return locator.NewResolver(locator.Config{
		TorrentDir: rt.cfg.Mount.TorrentDir(),
		UserAgent:  rt.cfg.UserAgent,
		Logger:     rt.logger,
	})
}

func (rt *runtime) manager() *mount.Manager {
	mounter := mount.NewBTFSMounter(rt.cfg.Mount.Binary, rt.cfg.Mount.UnmountBinary, rt.logger)
	return mount.NewManager(rt.fs, mounter, mount.Config{
		CacheDir:     rt.cfg.Mount.CacheDir,
		DataDir:      rt.cfg.Mount.DataDir(),
		PollInterval: rt.cfg.Mount.PollInterval,
		ReadyTimeout: rt.cfg.Mount.ReadyTimeout,
		Keep:         rt.cfg.Mount.Keep,
	}, rt.logger)
}

func (rt *runtime) titles(ctx context.Context) *tmdb.Client {
	var titles tmdb.Titles
	if client := rt.reachableRedis(ctx); client != nil && !rt.cfg.Cache.Disabled {
		titles = cache.NewRedis[[]tmdb.SearchResult](client, titleCachePrefix, titleCacheTTL, rt.logger)
	}
	return tmdb.NewClient(tmdb.Config{
		APIKey:  rt.cfg.TMDB.APIKey,
		BaseURL: rt.cfg.TMDB.BaseURL,
		Cache:   titles,
	})
}
