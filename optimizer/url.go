package optimizer

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidURL is returned by ParseURL for paths that are not canonical
// image URLs.
var ErrInvalidURL = errors.New("invalid image url")

// URL encodes img as its canonical request path. Field order is fixed:
//
//	/cache/image/<src>?kind=resize&w=<w>&h=<h>&q=<quality>
//	/cache/image/<src>?kind=blur&w=<w>&h=<h>&sw=<svg width>&sh=<svg height>&sigma=<sigma>
//
// The source is escaped as a single path segment. The result doubles as the
// textual cache key.
func (img CachedImage) URL() string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(img.Src))

	switch v := img.Variant.(type) {
	case Resize:
		b.WriteString("?kind=resize")
		writeParam(&b, "w", v.Width)
		writeParam(&b, "h", v.Height)
		writeParam(&b, "q", v.Quality)
	case Blur:
		b.WriteString("?kind=blur")
		writeParam(&b, "w", v.Width)
		writeParam(&b, "h", v.Height)
		writeParam(&b, "sw", v.SVGWidth)
		writeParam(&b, "sh", v.SVGHeight)
		writeParam(&b, "sigma", v.Sigma)
	}
	return b.String()
}

// Key is the canonical string form of img.
func (img CachedImage) Key() string {
	return img.URL()
}

func writeParam(b *strings.Builder, name string, v int) {
	b.WriteByte('&')
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(v))
}

// ParseURL decodes a request URL produced by CachedImage.URL. Query parameter
// order is not significant. Unknown or repeated parameters, numbers in any
// form other than the one URL writes, and sources not escaped the way URL
// escapes them are rejected, so each image is reachable under one spelling.
func ParseURL(u *url.URL) (CachedImage, error) {
	rest, ok := strings.CutPrefix(u.EscapedPath(), Prefix+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return CachedImage{}, fmt.Errorf("%w: path %q", ErrInvalidURL, u.EscapedPath())
	}
	src, err := url.PathUnescape(rest)
	if err != nil {
		return CachedImage{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if url.PathEscape(src) != rest {
		return CachedImage{}, fmt.Errorf("%w: source %q is not canonically escaped", ErrInvalidURL, rest)
	}

	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return CachedImage{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	p := params{q: q}

	if kinds := q["kind"]; len(kinds) != 1 {
		return CachedImage{}, fmt.Errorf("%w: parameter %q must appear once", ErrInvalidURL, "kind")
	}

	var img CachedImage
	switch Kind(q.Get("kind")) {
	case KindResize:
		img = CachedImage{Src: src, Variant: Resize{
			Width:   p.int("w"),
			Height:  p.int("h"),
			Quality: p.int("q"),
		}}
		p.allow("kind", "w", "h", "q")
	case KindBlur:
		img = CachedImage{Src: src, Variant: Blur{
			Width:     p.int("w"),
			Height:    p.int("h"),
			SVGWidth:  p.int("sw"),
			SVGHeight: p.int("sh"),
			Sigma:     p.int("sigma"),
		}}
		p.allow("kind", "w", "h", "sw", "sh", "sigma")
	default:
		return CachedImage{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidURL, q.Get("kind"))
	}
	if p.err != nil {
		return CachedImage{}, p.err
	}
	if err := img.Validate(); err != nil {
		return CachedImage{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return img, nil
}

// params reads required integer query parameters, keeping the first error.
type params struct {
	q   url.Values
	err error
}

func (p *params) int(name string) int {
	if p.err != nil {
		return 0
	}
	vals, ok := p.q[name]
	if !ok || len(vals) != 1 {
		p.err = fmt.Errorf("%w: parameter %q must appear once", ErrInvalidURL, name)
		return 0
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		p.err = fmt.Errorf("%w: parameter %q: %v", ErrInvalidURL, name, err)
		return 0
	}
	if strconv.Itoa(n) != vals[0] {
		p.err = fmt.Errorf("%w: parameter %q: non-canonical number %q", ErrInvalidURL, name, vals[0])
		return 0
	}
	return n
}

func (p *params) allow(names ...string) {
	if p.err != nil {
		return
	}
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}
	for name := range p.q {
		if _, ok := known[name]; !ok {
			p.err = fmt.Errorf("%w: unexpected parameter %q", ErrInvalidURL, name)
			return
		}
	}
}
