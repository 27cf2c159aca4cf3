// Package optimizer defines the identity of an optimized image variant and its
// canonical URL encoding. The same encoding is used to build image URLs while
// rendering and to decode them again when the image endpoint is hit, so a
// placeholder generated at warm-up is found later from identical field values.
package optimizer

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultQuality is the JPEG quality used when a page does not pick one.
	DefaultQuality = 75

	// Prefix is the path under which encoded images are served.
	Prefix = "/cache/image"
)

// Upper bounds on transform parameters. Image URLs are decoded from client
// requests, so every dimension that sizes an allocation is capped.
const (
	// MaxResizeDimension caps the width and height of a Resize.
	MaxResizeDimension = 8192

	// MaxBlurRaster caps the width and height of the raster a Blur embeds.
	MaxBlurRaster = 64

	// MaxBlurViewport caps the SVG width and height of a Blur.
	MaxBlurViewport = 4096

	// MaxBlurSigma caps the gaussian deviation of a Blur.
	MaxBlurSigma = 100
)

var (
	// ErrExternalSource is returned when a source points off-site. External
	// images bypass the optimizer and are rendered as-is.
	ErrExternalSource = errors.New("external image source")

	// ErrInvalidVariant is returned for out-of-range transform parameters.
	ErrInvalidVariant = errors.New("invalid image variant")
)

// Kind discriminates the two transform variants.
type Kind string

const (
	KindResize Kind = "resize"
	KindBlur   Kind = "blur"
)

// Variant is the transform applied to a source image. It is implemented only
// by Resize and Blur, both comparable value types.
type Variant interface {
	Kind() Kind
	Validate() error
	variant()
}

// Resize delivers the full image scaled to fit Width x Height, keeping the
// aspect ratio.
type Resize struct {
	Width   int
	Height  int
	Quality int // 0-100
}

func (Resize) Kind() Kind { return KindResize }
func (Resize) variant()   {}

// Validate checks dimensions and quality.
func (r Resize) Validate() error {
	if r.Width <= 0 || r.Height <= 0 || r.Width > MaxResizeDimension || r.Height > MaxResizeDimension {
		return fmt.Errorf("%w: resize %dx%d", ErrInvalidVariant, r.Width, r.Height)
	}
	if r.Quality < 0 || r.Quality > 100 {
		return fmt.Errorf("%w: quality %d not in 0-100", ErrInvalidVariant, r.Quality)
	}
	return nil
}

// Blur is a tiny Width x Height raster wrapped in an SVG of
// SVGWidth x SVGHeight with a gaussian blur of Sigma.
type Blur struct {
	Width     int
	Height    int
	SVGWidth  int
	SVGHeight int
	Sigma     int
}

func (Blur) Kind() Kind { return KindBlur }
func (Blur) variant()   {}

// Validate checks dimensions and sigma.
func (b Blur) Validate() error {
	if b.Width <= 0 || b.Height <= 0 || b.SVGWidth <= 0 || b.SVGHeight <= 0 {
		return fmt.Errorf("%w: blur %dx%d in %dx%d", ErrInvalidVariant, b.Width, b.Height, b.SVGWidth, b.SVGHeight)
	}
	if b.Width > MaxBlurRaster || b.Height > MaxBlurRaster {
		return fmt.Errorf("%w: blur raster %dx%d exceeds %d", ErrInvalidVariant, b.Width, b.Height, MaxBlurRaster)
	}
	if b.SVGWidth > MaxBlurViewport || b.SVGHeight > MaxBlurViewport {
		return fmt.Errorf("%w: blur viewport %dx%d exceeds %d", ErrInvalidVariant, b.SVGWidth, b.SVGHeight, MaxBlurViewport)
	}
	if b.Sigma < 0 || b.Sigma > MaxBlurSigma {
		return fmt.Errorf("%w: sigma %d not in 0-%d", ErrInvalidVariant, b.Sigma, MaxBlurSigma)
	}
	return nil
}

// DefaultBlur is the placeholder variant pages get when they ask for a blur.
var DefaultBlur = Blur{Width: 25, Height: 25, SVGWidth: 100, SVGHeight: 100, Sigma: 15}

// CachedImage identifies one required image variant. It is comparable and is
// used directly as a map key.
type CachedImage struct {
	Src     string
	Variant Variant
}

// NewResize returns the Resize variant of src. External sources are rejected.
func NewResize(src string, width, height, quality int) (CachedImage, error) {
	return newImage(src, Resize{Width: width, Height: height, Quality: quality})
}

// NewBlur returns the Blur variant of src. External sources are rejected.
func NewBlur(src string, blur Blur) (CachedImage, error) {
	return newImage(src, blur)
}

func newImage(src string, v Variant) (CachedImage, error) {
	img := CachedImage{Src: src, Variant: v}
	if err := img.Validate(); err != nil {
		return CachedImage{}, err
	}
	return img, nil
}

// Validate reports whether img can be encoded and transformed.
func (img CachedImage) Validate() error {
	if img.Src == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidVariant)
	}
	if IsExternal(img.Src) {
		return fmt.Errorf("%w: %s", ErrExternalSource, img.Src)
	}
	if img.Variant == nil {
		return fmt.Errorf("%w: missing variant", ErrInvalidVariant)
	}
	return img.Variant.Validate()
}

// IsBlur reports whether img is a placeholder variant.
func (img CachedImage) IsBlur() bool {
	_, ok := img.Variant.(Blur)
	return ok
}

// Blur returns the Blur variant of the same source.
func (img CachedImage) Blur(b Blur) CachedImage {
	return CachedImage{Src: img.Src, Variant: b}
}

// String returns the canonical URL.
func (img CachedImage) String() string {
	return img.URL()
}

// IsExternal reports whether src points to another host. Such sources are not
// optimized.
func IsExternal(src string) bool {
	s := strings.ToLower(strings.TrimSpace(src))
	for _, p := range []string{"http://", "https://", "//", "data:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
