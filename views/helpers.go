package views

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(templ.EscapeString(value))
	b.WriteByte('"')
}

func writeIntAttr(b *strings.Builder, name string, value int) {
	writeAttr(b, name, strconv.Itoa(value))
}

// Layout wraps body in a minimal HTML document.
func Layout(meta PageMeta, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"/>`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1"/><title>`)
		b.WriteString(templ.EscapeString(meta.Title))
		b.WriteString(`</title>`)
		if meta.Description != "" {
			b.WriteString(`<meta name="description"`)
			writeAttr(&b, "content", meta.Description)
			b.WriteString(`/>`)
		}
		if meta.URL != "" {
			b.WriteString(`<link rel="canonical"`)
			writeAttr(&b, "href", meta.URL)
			b.WriteString(`/>`)
		}
		b.WriteString(`</head><body>`)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}
