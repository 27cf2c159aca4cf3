package imagewarm

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/placeholder"
	"github.com/eringen/imagewarm/transform"
	"github.com/eringen/imagewarm/views"
)

var (
	heroFull = optimizer.CachedImage{Src: "/hero.png", Variant: optimizer.Resize{Width: 800, Height: 600, Quality: optimizer.DefaultQuality}}
	heroBlur = heroFull.Blur(optimizer.DefaultBlur)
	logoFull = optimizer.CachedImage{Src: "/logo.png", Variant: optimizer.Resize{Width: 200, Height: 100, Quality: optimizer.DefaultQuality}}
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// countingEngine counts transforms per image.
type countingEngine struct {
	next  placeholder.Engine
	calls atomic.Int64
}

func (e *countingEngine) Transform(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
	e.calls.Add(1)
	return e.next.Transform(ctx, img)
}

func testEngine(t *testing.T) *countingEngine {
	return &countingEngine{next: transform.NewFS(fstest.MapFS{
		"hero.png": {Data: testPNG(t, 120, 90)},
		"logo.png": {Data: testPNG(t, 40, 20)},
	})}
}

func homePage(rc *introspect.RenderContext) templ.Component {
	return views.Layout(views.PageMeta{Title: "Home"}, views.Image(rc, views.ImageProps{
		Src: "/hero.png", Width: 800, Height: 600, Blur: true, Priority: true, Alt: "Hero",
	}))
}

func aboutPage(rc *introspect.RenderContext) templ.Component {
	return views.Layout(views.PageMeta{Title: "About"}, views.Markdown(rc,
		"# About\n\n![Hero](/hero.png){blur|800|600}\n\n![Logo](/logo.png){|200|100}\n\n![Ext](https://example.com/x.png){blur}"))
}

func postPage(rc *introspect.RenderContext) templ.Component {
	body, err := introspect.Fetch(rc, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("# Post %s\n\n![Cover](/covers/%s.png){blur|640|480}", rc.Param("slug"), rc.Param("slug")), nil
	})
	if err != nil {
		return nil
	}
	return views.Layout(views.PageMeta{Title: "Post"}, views.Markdown(rc, body))
}

func newTestApp(t *testing.T, cfg Config, opts ...Option) (*App, *countingEngine) {
	t.Helper()
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "-"
	}
	engine := testEngine(t)
	opts = append([]Option{WithEngine(engine), WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	a := New(cfg, opts...)
	a.Page("/", homePage)
	a.Page("/about", aboutPage)
	a.Page("/blog/:slug", postPage)
	return a, engine
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func get(a *App, target string) *httptest.ResponseRecorder {
	return serve(a, httptest.NewRequest(http.MethodGet, target, nil))
}
