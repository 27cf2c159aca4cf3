package views

import (
	"context"
	"encoding/base64"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
)

const placeholderStyle = "color:transparent;background-size:cover;background-position:50% 50%;" +
	"background-repeat:no-repeat;background-image:"

// Image renders an optimized site image. While introspecting it records the
// variants it needs in rc's registry. With Blur set, the placeholder is
// inlined when the cache already has it and requested over the network
// otherwise. External sources are rendered untouched.
func Image(rc *introspect.RenderContext, p ImageProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		out, err := imageHTML(rc, p)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	})
}

func imageHTML(rc *introspect.RenderContext, p ImageProps) (string, error) {
	if optimizer.IsExternal(p.Src) {
		return imgTag(p.Src, p, ""), nil
	}

	quality := p.Quality
	if quality == 0 {
		quality = optimizer.DefaultQuality
	}
	full, err := optimizer.NewResize(p.Src, p.Width, p.Height, quality)
	if err != nil {
		return "", err
	}
	placeholder := full.Blur(optimizer.DefaultBlur)

	if p.Blur {
		rc.Require(full, placeholder)
	} else {
		rc.Require(full)
	}

	var b strings.Builder
	if p.Priority {
		b.WriteString(`<link rel="preload" as="image" href="`)
		b.WriteString(templ.EscapeString(full.URL()))
		b.WriteString(`"/>`)
	}
	style := ""
	if p.Blur {
		style = placeholderStyle + backgroundImage(rc, placeholder) + ";"
	}
	b.WriteString(imgTag(full.URL(), p, style))
	return b.String(), nil
}

func backgroundImage(rc *introspect.RenderContext, placeholder optimizer.CachedImage) string {
	if svg, ok := rc.Placeholder(placeholder); ok {
		return "url('data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)) + "')"
	}
	return "url('" + placeholder.URL() + "')"
}

func imgTag(src string, p ImageProps, style string) string {
	var b strings.Builder
	b.WriteString(`<img src="`)
	b.WriteString(templ.EscapeString(src))
	b.WriteString(`" alt="`)
	b.WriteString(templ.EscapeString(p.Alt))
	b.WriteByte('"')
	writeAttr(&b, "class", p.Class)
	if p.Width > 0 && p.Height > 0 {
		writeIntAttr(&b, "width", p.Width)
		writeIntAttr(&b, "height", p.Height)
	}
	if style != "" {
		writeAttr(&b, "style", style)
		b.WriteString(` onload="this.removeAttribute('style')"`)
	}
	if p.Priority {
		b.WriteString(` fetchpriority="high"`)
	} else {
		b.WriteString(` loading="lazy"`)
	}
	b.WriteString(` decoding="async"/>`)
	return b.String()
}
