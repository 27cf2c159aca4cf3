package imagewarm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/placeholder"
)

// WarmResult summarizes one warm-up run.
type WarmResult struct {
	RunID string

	Paths  []string                // static paths, in route order
	Images []optimizer.CachedImage // distinct variants, first-seen order

	ConfigErrors    []error
	RenderErrors    []*introspect.RenderError
	TransformErrors []*placeholder.TransformError

	Generated int // placeholders inserted by this run
	Duration  time.Duration
}

type warmConfig struct {
	workers  int
	hooks    introspect.Hooks
	logger   *slog.Logger
	populate []placeholder.Option
	metrics  *Metrics
}

// WarmOption configures WarmCache.
type WarmOption func(*warmConfig)

// WarmWorkers sets how many paths are rendered concurrently.
func WarmWorkers(n int) WarmOption {
	return func(c *warmConfig) {
		c.workers = n
	}
}

// WarmHooks runs h around every introspection render.
func WarmHooks(h introspect.Hooks) WarmOption {
	return func(c *warmConfig) {
		c.hooks = h
	}
}

// WarmLogger sets the logger. If not set, logging is disabled.
func WarmLogger(logger *slog.Logger) WarmOption {
	return func(c *warmConfig) {
		c.logger = logger
	}
}

// WarmPopulate passes options to placeholder.Populate.
func WarmPopulate(opts ...placeholder.Option) WarmOption {
	return func(c *warmConfig) {
		c.populate = append(c.populate, opts...)
	}
}

func warmMetrics(m *Metrics) WarmOption {
	return func(c *warmConfig) {
		c.metrics = m
	}
}

// WarmCache discovers the images render needs on every static path in routes
// and generates their placeholders into cache. Malformed routes, failing
// renders and failing transforms are reported in the result and never abort
// the run; only a cancelled ctx does. Running it twice is harmless: existing
// entries are left as they are.
func WarmCache(ctx context.Context, render introspect.RenderFunc, routes []introspect.Route,
	cache *placeholder.Cache, engine placeholder.Engine, opts ...WarmOption) (*WarmResult, error) {
	cfg := warmConfig{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	start := time.Now()
	res := &WarmResult{RunID: uuid.NewString()}
	logger = logger.With("run_id", res.RunID)

	res.Paths, res.ConfigErrors = introspect.EnumeratePaths(routes)
	for _, err := range res.ConfigErrors {
		logger.Warn("skipping route", "error", err)
	}
	logger.Info("crawling static paths", "paths", len(res.Paths), "workers", cfg.workers)

	renderer := introspect.NewRenderer(render,
		introspect.WithHooks(cfg.hooks),
		introspect.WithWorkers(cfg.workers),
		introspect.WithLogger(logger),
	)
	crawl, err := renderer.RenderPaths(ctx, res.Paths)
	if err != nil {
		return nil, err
	}
	res.Images = crawl.Images
	res.RenderErrors = crawl.Errors

	popOpts := append([]placeholder.Option{placeholder.WithLogger(logger)}, cfg.populate...)
	pop, err := placeholder.Populate(ctx, cache, engine, res.Images, popOpts...)
	if err != nil {
		return nil, err
	}
	res.TransformErrors = pop.Errors
	res.Generated = pop.Inserted
	res.Duration = time.Since(start)

	if cfg.metrics != nil {
		cfg.metrics.observeWarm(res)
	}
	logger.Info("cache warmed",
		"images", len(res.Images),
		"placeholders", pop.Considered,
		"generated", res.Generated,
		"render_errors", len(res.RenderErrors),
		"transform_errors", len(res.TransformErrors),
		"duration", res.Duration,
	)
	return res, nil
}
