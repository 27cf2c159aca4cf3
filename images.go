package imagewarm

import (
	"context"
	_ "crypto/sha256"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/opencontainers/go-digest"

	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/transform"
)

const immutableCache = "public, max-age=31536000, immutable"

// handleImage serves one variant named by its canonical URL. Placeholders are
// answered from the warmed cache, stored Resize variants from SQLite; anything
// else is transformed on demand, once per key across concurrent requests.
func (a *App) handleImage(c echo.Context) error {
	img, err := optimizer.ParseURL(c.Request().URL)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if img.IsBlur() {
		if svg, ok := a.Placeholders.Lookup(img); ok {
			a.Metrics.ImageRequests.WithLabelValues(servedPlaceholder).Inc()
			return writeImage(c, img, []byte(svg))
		}
	} else if a.Store != nil {
		data, ok, err := a.Store.Get(ctx, img)
		if err != nil {
			a.logger.Warn("variant store read failed", "image", img.URL(), "error", err)
		} else if ok {
			a.Metrics.ImageRequests.WithLabelValues(servedStore).Inc()
			return writeImage(c, img, data)
		}
	}

	if !a.limiter.Allow(c.RealIP()) {
		a.Metrics.ImageRequests.WithLabelValues(servedLimited).Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many image transforms")
	}

	v, err, _ := a.flight.Do(img.Key(), func() (any, error) {
		// Shared by every waiting request, so one client going away must
		// not cancel it.
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.TransformTimeout)
		defer cancel()
		data, err := a.Engine.Transform(tctx, img)
		if err != nil {
			return nil, err
		}
		if a.Store != nil && !img.IsBlur() {
			if err := a.Store.Put(tctx, img, data); err != nil {
				a.logger.Warn("variant store write failed", "image", img.URL(), "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		a.Metrics.ImageRequests.WithLabelValues(servedError).Inc()
		return err
	}
	a.Metrics.ImageRequests.WithLabelValues(servedTransform).Inc()
	return writeImage(c, img, v.([]byte))
}

func writeImage(c echo.Context, img optimizer.CachedImage, data []byte) error {
	etag := `"` + digest.FromBytes(data).Encoded() + `"`
	h := c.Response().Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", immutableCache)
	if match := c.Request().Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, transform.ContentType(img), data)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
