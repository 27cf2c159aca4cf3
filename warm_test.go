package imagewarm

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"testing"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/placeholder"
	"github.com/eringen/imagewarm/views"
)

var siteRoutes = []introspect.Route{
	{Method: http.MethodGet, Path: "/"},
	{Method: http.MethodGet, Path: "/about"},
	{Method: http.MethodGet, Path: "/blog/:slug"},
}

func TestWarmCacheSharedPlaceholder(t *testing.T) {
	a, engine := newTestApp(t, Config{})
	cache := placeholder.NewCache()

	res, err := WarmCache(context.Background(), a.Entry, siteRoutes, cache, engine)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"/", "/about"}, res.Paths)
	assert.Equal(t, []optimizer.CachedImage{heroFull, heroBlur, logoFull}, res.Images)
	assert.Empty(t, res.ConfigErrors)
	assert.Empty(t, res.RenderErrors)
	assert.Empty(t, res.TransformErrors)
	assert.Equal(t, 1, res.Generated)

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	assert.Contains(t, snap[heroBlur], "<svg")
	assert.Equal(t, int64(1), engine.calls.Load(), "only placeholders are generated ahead of time")
}

func TestWarmCacheIdempotent(t *testing.T) {
	a, engine := newTestApp(t, Config{})
	cache := placeholder.NewCache()

	_, err := WarmCache(context.Background(), a.Entry, siteRoutes, cache, engine)
	require.NoError(t, err)
	first := cache.Snapshot()

	res, err := WarmCache(context.Background(), a.Entry, siteRoutes, cache, engine)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Generated)
	assert.Equal(t, first, cache.Snapshot())
}

func TestWarmCacheParallelMatchesSequential(t *testing.T) {
	a, engine := newTestApp(t, Config{})

	seq, err := WarmCache(context.Background(), a.Entry, siteRoutes, placeholder.NewCache(), engine, WarmWorkers(1))
	require.NoError(t, err)
	par, err := WarmCache(context.Background(), a.Entry, siteRoutes, placeholder.NewCache(), engine, WarmWorkers(8))
	require.NoError(t, err)

	assert.Equal(t, seq.Paths, par.Paths)
	assert.Equal(t, seq.Images, par.Images)
}

func TestWarmCacheReportsFailures(t *testing.T) {
	a, engine := newTestApp(t, Config{})
	ghost := optimizer.CachedImage{Src: "/ghost.png", Variant: optimizer.DefaultBlur}

	render := func(rc *introspect.RenderContext) templ.Component {
		switch rc.Path {
		case "/broken":
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				rc.Require(ghost)
				return errors.New("template exploded")
			})
		case "/missing":
			return views.Image(rc, views.ImageProps{Src: "/missing.png", Width: 10, Height: 10, Blur: true})
		}
		return a.Entry(rc)
	}
	routes := append([]introspect.Route{
		{Method: http.MethodGet, Path: "/broken"},
		{Method: http.MethodGet, Path: "/missing"},
		{Method: http.MethodGet, Path: "about us"},
	}, siteRoutes...)

	cache := placeholder.NewCache()
	res, err := WarmCache(context.Background(), render, routes, cache, engine, WarmPopulate(placeholder.WithRetries(0)))
	require.NoError(t, err)

	assert.Equal(t, []string{"/broken", "/missing", "/", "/about"}, res.Paths)
	require.Len(t, res.ConfigErrors, 1)
	var cfgErr *introspect.ConfigurationError
	assert.ErrorAs(t, res.ConfigErrors[0], &cfgErr)

	require.Len(t, res.RenderErrors, 1)
	assert.Equal(t, "/broken", res.RenderErrors[0].Path)
	assert.NotContains(t, res.Images, ghost)

	require.Len(t, res.TransformErrors, 1)
	assert.Equal(t, "/missing.png", res.TransformErrors[0].Image.Src)
	assert.ErrorIs(t, res.TransformErrors[0], fs.ErrNotExist)

	_, ok := cache.Lookup(heroBlur)
	assert.True(t, ok, "other placeholders are still generated")
	assert.Equal(t, 1, cache.Len())
}

func TestWarmCacheHooks(t *testing.T) {
	a, engine := newTestApp(t, Config{})
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(event string) func(string) {
		return func(path string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event+" "+path)
		}
	}
	hooks := introspect.Hooks{Before: record("before"), After: record("after")}

	_, err := WarmCache(context.Background(), a.Entry, siteRoutes, placeholder.NewCache(), engine, WarmHooks(hooks))
	require.NoError(t, err)
	assert.Equal(t, []string{"before /", "after /", "before /about", "after /about"}, events)
}

func TestWarmCacheCancelled(t *testing.T) {
	a, engine := newTestApp(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WarmCache(ctx, a.Entry, siteRoutes, placeholder.NewCache(), engine)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAppWarm(t *testing.T) {
	a, _ := newTestApp(t, Config{})

	assert.Equal(t, []introspect.Route{
		{Method: http.MethodGet, Path: "/"},
		{Method: http.MethodGet, Path: "/about"},
		{Method: http.MethodGet, Path: "/blog/:slug"},
	}, a.Routes())

	res, err := a.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/about"}, res.Paths)
	assert.Equal(t, 1, a.Placeholders.Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.WarmRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.PlaceholdersGenerated))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.Metrics.ImagesDiscovered))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.Metrics.WarmFailures.WithLabelValues("render")))
}
