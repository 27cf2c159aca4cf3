package imagewarm

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/transform"
	"github.com/eringen/imagewarm/views"
)

func (a *App) handlePage(view introspect.RenderFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		names := c.ParamNames()
		values := c.ParamValues()
		params := make(map[string]string, len(names))
		for i, name := range names {
			if i < len(values) {
				params[name] = values[i]
			}
		}
		rc := introspect.NewRequestContext(c.Request(), params, a.Placeholders)
		cmp := view(rc)
		if cmp == nil {
			return echo.ErrNotFound
		}
		return Render(c, cmp)
	}
}

func (a *App) handleSitemap(c echo.Context) error {
	return a.renderSitemap(c, a.StaticPaths())
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\nSitemap: " + sitemapLoc(a.Config.URL, "/sitemap.xml") + "\n"
	return c.String(http.StatusOK, body)
}

// httpStatus maps handler errors to response codes.
func httpStatus(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, optimizer.ErrInvalidURL),
		errors.Is(err, optimizer.ErrInvalidVariant),
		errors.Is(err, optimizer.ErrExternalSource):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, transform.ErrInvalidSource):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := httpStatus(err)
	if code >= 500 {
		a.logger.Error("server error", "method", c.Request().Method, "uri", c.Request().RequestURI, "error", err)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	title := fmt.Sprintf("%d %s", code, http.StatusText(code))
	page := views.Layout(views.PageMeta{Title: title}, templ.Raw("<h1>"+templ.EscapeString(title)+"</h1>"))
	if rerr := RenderStatus(c, code, page); rerr != nil {
		a.logger.Error("render error page", "error", rerr)
	}
}
