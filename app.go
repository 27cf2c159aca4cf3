// Package imagewarm serves templ pages whose images are optimized on demand
// and whose blur placeholders are generated before the first request.
//
// Pages are registered with App.Page. On Start the app renders every static
// page once in introspection mode, collects the image variants the pages ask
// for, generates their placeholders into a process-wide cache, freezes the
// cache, and then starts serving.
package imagewarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/placeholder"
	"github.com/eringen/imagewarm/transform"
)

// App wires together pages, the placeholder cache, the transform engine, the
// variant store and the HTTP server.
type App struct {
	Config       Config
	Echo         *echo.Echo
	Placeholders *placeholder.Cache
	Engine       placeholder.Engine
	Store        *Store
	Metrics      *Metrics

	logger       *slog.Logger
	pages        map[string]introspect.RenderFunc
	limiter      *TransformLimiter
	flight       singleflight.Group
	customRoutes []func(*App)
}

// New creates an App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:       cfg,
		Echo:         echo.New(),
		Placeholders: placeholder.NewCache(),
		Metrics:      NewMetrics(),
		pages:        make(map[string]introspect.RenderFunc),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.Engine == nil {
		a.Engine = transform.New(cfg.AssetDir, transform.WithLogger(a.logger))
	}
	a.limiter = NewTransformLimiter(cfg.TransformLimit, cfg.TransformWindow)

	a.Echo.HideBanner = true
	a.Echo.HidePort = true
	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return a
}

// Page registers view for GET requests to path. Paths may hold echo
// parameters (":slug") or wildcards; such pages are served but never
// introspected.
func (a *App) Page(path string, view introspect.RenderFunc) {
	a.pages[path] = view
	a.Echo.GET(path, a.handlePage(view))
}

// Entry is the render entry point used for introspection: it resolves the
// page registered for rc.Path.
func (a *App) Entry(rc *introspect.RenderContext) templ.Component {
	view, ok := a.pages[rc.Path]
	if !ok {
		return nil
	}
	return view(rc)
}

// Routes returns the routes of the registered pages, ordered by path.
func (a *App) Routes() []introspect.Route {
	var routes []introspect.Route
	for _, r := range a.Echo.Routes() {
		if _, ok := a.pages[r.Path]; !ok {
			continue
		}
		routes = append(routes, introspect.Route{Method: r.Method, Path: r.Path})
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// StaticPaths returns the paths Warm crawls.
func (a *App) StaticPaths() []string {
	paths, _ := introspect.EnumeratePaths(a.Routes())
	return paths
}

// Warm crawls the registered pages and fills the placeholder cache.
func (a *App) Warm(ctx context.Context) (*WarmResult, error) {
	return WarmCache(ctx, a.Entry, a.Routes(), a.Placeholders, a.Engine,
		WarmWorkers(a.Config.CrawlWorkers),
		WarmLogger(a.logger),
		WarmPopulate(a.Config.populateOptions()...),
		warmMetrics(a.Metrics),
	)
}

// Start opens the store, warms and freezes the placeholder cache, and serves
// until ctx is done.
func (a *App) Start(ctx context.Context) error {
	if a.Store == nil && a.Config.DatabasePath != "-" {
		store, err := NewStore(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("imagewarm: init store: %w", err)
		}
		a.Store = store
	}

	if _, err := a.Warm(ctx); err != nil {
		return fmt.Errorf("imagewarm: warm cache: %w", err)
	}
	a.Placeholders.Freeze()

	go a.sweepLimiter(ctx)

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.Config.Addr, "placeholders", a.Placeholders.Len())
		errc <- a.Echo.Start(a.Config.Addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	}
}

func (a *App) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(a.Config.TransformWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Sweep()
		}
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.Config.AssetDir)
	e.GET(optimizer.Prefix+"/*", a.handleImage)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
