package introspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/eringen/imagewarm/optimizer"
)

// syntheticOrigin is the host of the fake requests used while crawling.
const syntheticOrigin = "http://introspect.local"

var errNoView = errors.New("render entry point returned no view")

// RenderError attributes an application failure to the path being rendered.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Hooks run once each around every render.
type Hooks struct {
	Before func(path string)
	After  func(path string)
}

// Renderer performs isolated, fetch-suppressed renders.
type Renderer struct {
	render       RenderFunc
	hooks        Hooks
	placeholders Placeholders
	workers      int
	logger       *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithHooks sets the before/after hooks.
func WithHooks(h Hooks) Option {
	return func(r *Renderer) {
		r.hooks = h
	}
}

// WithPlaceholders exposes a placeholder lookup to introspection renders.
func WithPlaceholders(p Placeholders) Option {
	return func(r *Renderer) {
		r.placeholders = p
	}
}

// WithWorkers sets how many paths are rendered concurrently. Values below 2
// render sequentially.
func WithWorkers(n int) Option {
	return func(r *Renderer) {
		r.workers = n
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// NewRenderer returns a Renderer for the given entry point.
func NewRenderer(render RenderFunc, opts ...Option) *Renderer {
	r := &Renderer{render: render, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// RenderPath renders the application once for path with a fresh registry and
// returns the images it recorded. On failure the partial registry is
// discarded and a *RenderError is returned.
func (r *Renderer) RenderPath(ctx context.Context, path string) ([]optimizer.CachedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, syntheticOrigin+path, nil)
	if err != nil {
		return nil, &RenderError{Path: path, Err: err}
	}
	rc := &RenderContext{
		Request:       req,
		Path:          path,
		Registry:      NewRegistry(),
		Placeholders:  r.placeholders,
		SuppressFetch: true,
	}
	if err := r.renderOnce(rc); err != nil {
		return nil, &RenderError{Path: path, Err: err}
	}
	return rc.Registry.Images(), nil
}

func (r *Renderer) renderOnce(rc *RenderContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if r.hooks.Before != nil {
		r.hooks.Before(rc.Path)
	}
	if r.hooks.After != nil {
		defer r.hooks.After(rc.Path)
	}

	view := r.render(rc)
	if view == nil {
		return errNoView
	}
	return view.Render(rc.Context(), io.Discard)
}

// CrawlResult is the outcome of rendering a list of paths.
type CrawlResult struct {
	Paths  []string
	Images []optimizer.CachedImage // deduplicated, first-seen order
	Errors []*RenderError
}

// RenderPaths renders every path and merges the recorded images. A failing
// path is reported in Errors and contributes nothing. The returned error is
// non-nil only if ctx is cancelled.
func (r *Renderer) RenderPaths(ctx context.Context, paths []string) (*CrawlResult, error) {
	type slot struct {
		images []optimizer.CachedImage
		err    error
	}
	slots := make([]slot, len(paths))

	if r.workers < 2 {
		for i, p := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			slots[i].images, slots[i].err = r.RenderPath(ctx, p)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for i, p := range paths {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[i].images, slots[i].err = r.RenderPath(gctx, p)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := NewImageSet()
	res := &CrawlResult{Paths: paths}
	for i, s := range slots {
		if s.err != nil {
			var re *RenderError
			if !errors.As(s.err, &re) {
				re = &RenderError{Path: paths[i], Err: s.err}
			}
			r.log().Warn("render failed, discarding its images", "path", re.Path, "error", re.Err)
			res.Errors = append(res.Errors, re)
			continue
		}
		r.log().Debug("rendered path", "path", paths[i], "images", len(s.images))
		set.Add(s.images...)
	}
	res.Images = set.Slice()
	return res, nil
}
