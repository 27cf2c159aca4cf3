package introspect

import (
	"context"
	"net/http"

	"github.com/a-h/templ"

	"github.com/eringen/imagewarm/optimizer"
)

// RenderFunc is an application's render entry point. It must be safe to call
// repeatedly and concurrently with distinct contexts.
type RenderFunc func(rc *RenderContext) templ.Component

// Placeholders is the read side of the placeholder cache.
type Placeholders interface {
	Lookup(img optimizer.CachedImage) (string, bool)
}

// RenderContext is passed explicitly to the entry point and every component
// below it. Registry is non-nil only during introspection.
type RenderContext struct {
	Request      *http.Request
	Path         string
	Params       map[string]string
	Registry     *Registry
	Placeholders Placeholders

	// SuppressFetch disables data loading for this render only.
	SuppressFetch bool
}

// NewRequestContext returns the context used for real traffic.
func NewRequestContext(r *http.Request, params map[string]string, placeholders Placeholders) *RenderContext {
	return &RenderContext{
		Request:      r,
		Path:         r.URL.Path,
		Params:       params,
		Placeholders: placeholders,
	}
}

// Context returns the request context.
func (rc *RenderContext) Context() context.Context {
	if rc.Request == nil {
		return context.Background()
	}
	return rc.Request.Context()
}

// Param returns a named route parameter.
func (rc *RenderContext) Param(name string) string {
	return rc.Params[name]
}

// Introspecting reports whether this render only records images.
func (rc *RenderContext) Introspecting() bool {
	return rc.Registry != nil
}

// Require records images the page needs. It is a no-op for real traffic.
func (rc *RenderContext) Require(images ...optimizer.CachedImage) {
	if rc.Registry != nil {
		rc.Registry.Push(images...)
	}
}

// Placeholder looks up a pre-generated placeholder payload.
func (rc *RenderContext) Placeholder(img optimizer.CachedImage) (string, bool) {
	if rc.Placeholders == nil {
		return "", false
	}
	return rc.Placeholders.Lookup(img)
}

// Fetch runs fn unless data loading is suppressed for rc, in which case it
// returns the zero value.
func Fetch[T any](rc *RenderContext, fn func(ctx context.Context) (T, error)) (T, error) {
	if rc.SuppressFetch {
		var zero T
		return zero, nil
	}
	return fn(rc.Context())
}
