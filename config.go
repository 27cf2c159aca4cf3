package imagewarm

import (
	"log/slog"
	"time"

	"github.com/eringen/imagewarm/placeholder"
)

// Config holds all configuration for an imagewarm site.
type Config struct {
	URL  string // Canonical URL (default "http://localhost:3000")
	Addr string // Listen address (default ":3000")

	AssetDir     string // Source image root (default "public")
	DatabasePath string // SQLite variant store path (default "data/variants.db"), "-" disables it

	CrawlWorkers     int           // Concurrent introspection renders (default 4)
	PlaceholderJobs  int           // Concurrent placeholder transforms (default 4)
	TransformRetries int           // Retries per placeholder (default 2)
	TransformTimeout time.Duration // Per placeholder timeout (default 30s)
	TransformLimit   int           // On-demand transforms per client per window (default 60)
	TransformWindow  time.Duration // Limiter window (default 1min)
}

func (c *Config) setDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.AssetDir == "" {
		c.AssetDir = "public"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/variants.db"
	}
	if c.CrawlWorkers == 0 {
		c.CrawlWorkers = 4
	}
	if c.PlaceholderJobs == 0 {
		c.PlaceholderJobs = 4
	}
	if c.TransformRetries == 0 {
		c.TransformRetries = 2
	}
	if c.TransformTimeout == 0 {
		c.TransformTimeout = 30 * time.Second
	}
	if c.TransformLimit == 0 {
		c.TransformLimit = 60
	}
	if c.TransformWindow == 0 {
		c.TransformWindow = time.Minute
	}
}

func (c *Config) populateOptions() []placeholder.Option {
	return []placeholder.Option{
		placeholder.WithConcurrency(c.PlaceholderJobs),
		placeholder.WithRetries(c.TransformRetries),
		placeholder.WithTimeout(c.TransformTimeout),
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs from New, after the built-in routes.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger sets the application logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithEngine replaces the transform engine. By default sources are read from
// Config.AssetDir.
func WithEngine(engine placeholder.Engine) Option {
	return func(a *App) {
		a.Engine = engine
	}
}

// WithStore sets the variant store instead of opening Config.DatabasePath.
func WithStore(store *Store) Option {
	return func(a *App) {
		a.Store = store
	}
}
