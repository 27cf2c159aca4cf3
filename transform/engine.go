// Package transform turns local source images into optimized variants: fitted
// JPEGs for Resize and blurred SVG placeholders for Blur.
package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/eringen/imagewarm/optimizer"
)

// ErrInvalidSource is returned for sources that do not name a file under the
// engine root.
var ErrInvalidSource = errors.New("invalid image source")

// Engine reads sources from a file system and produces image variants.
type Engine struct {
	fsys   fs.FS
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New returns an Engine serving sources from the directory root.
func New(root string, opts ...Option) *Engine {
	return NewFS(os.DirFS(root), opts...)
}

// NewFS returns an Engine serving sources from fsys.
func NewFS(fsys fs.FS, opts ...Option) *Engine {
	e := &Engine{fsys: fsys}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// ContentType returns the MIME type Transform produces for img.
func ContentType(img optimizer.CachedImage) string {
	if img.IsBlur() {
		return "image/svg+xml"
	}
	return "image/jpeg"
}

// Transform produces the bytes of img.
func (e *Engine) Transform(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := e.decode(img.Src)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	switch v := img.Variant.(type) {
	case optimizer.Resize:
		out, err = resize(src, v)
	case optimizer.Blur:
		out, err = blur(src, v)
	default:
		err = fmt.Errorf("%w: %T", optimizer.ErrInvalidVariant, img.Variant)
	}
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", img.Src, err)
	}
	e.logger.Debug("transformed image", "image", img.URL(), "bytes", len(out))
	return out, nil
}

// decode opens a source relative to the engine root. Leading slashes and dot
// segments are cleaned away, so sources cannot escape the root.
func (e *Engine) decode(src string) (image.Image, error) {
	name := strings.TrimPrefix(path.Clean("/"+src), "/")
	if name == "" || !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, src)
	}
	f, err := e.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// resize fits src inside the box, keeping the aspect ratio, and encodes JPEG.
func resize(src image.Image, r optimizer.Resize) ([]byte, error) {
	dst := imaging.Fit(src, r.Width, r.Height, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(r.Quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

const blurSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="%[1]d" height="%[2]d" viewBox="0 0 %[1]d %[2]d">` +
	`<filter id="b" color-interpolation-filters="sRGB"><feGaussianBlur stdDeviation="%[3]d"/>` +
	`<feComponentTransfer><feFuncA type="discrete" tableValues="1 1"/></feComponentTransfer></filter>` +
	`<image filter="url(#b)" preserveAspectRatio="none" x="0" y="0" width="100%%" height="100%%" href="data:image/png;base64,%[4]s"/></svg>`

// blur scales src down to a tiny PNG and wraps it in an SVG that blurs it
// back up to the placeholder size.
func blur(src image.Image, b optimizer.Blur) ([]byte, error) {
	tiny := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	draw.CatmullRom.Scale(tiny, tiny.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, tiny, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	svg := fmt.Sprintf(blurSVG, b.SVGWidth, b.SVGHeight, b.Sigma, base64.StdEncoding.EncodeToString(buf.Bytes()))
	return []byte(svg), nil
}
