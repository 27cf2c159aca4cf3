package views

import (
	"context"
	"html"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/optimizer"
)

var (
	reBold        = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic      = regexp.MustCompile(`\*([^*]+)\*`)
	reInlineCode  = regexp.MustCompile("`([^`]+)`")
	reLink        = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	reOrderedList = regexp.MustCompile(`^\d+\.\s`)
	// ![alt](src){opts} or ![alt](src){opts|width|height}
	reImg = regexp.MustCompile(`\!\[(.*?)\]\((.*?)\)\{([^|}]*?)(?:\|(\d+)\|(\d+))?\}`)
)

const (
	defaultImageWidth  = 1024
	defaultImageHeight = 768
)

// Markdown renders content as HTML. Local images are emitted through Image,
// so introspecting a page that embeds Markdown records its variants too.
// Image options are space separated words: "blur" and "priority".
func Markdown(rc *introspect.RenderContext, content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		md := &mdRenderer{rc: rc}
		out := md.render(content)
		if md.err != nil {
			return md.err
		}
		_, err := io.WriteString(w, out)
		return err
	})
}

type mdRenderer struct {
	rc  *introspect.RenderContext
	b   strings.Builder
	err error

	open string // currently open block element, "" for none
}

func (m *mdRenderer) close() {
	switch m.open {
	case "":
		return
	case "pre":
		m.b.WriteString("</code></pre>")
	default:
		m.b.WriteString("</" + m.open + ">")
	}
	m.open = ""
}

func (m *mdRenderer) enter(tag string) bool {
	if m.open == tag {
		return false
	}
	m.close()
	m.b.WriteString("<" + tag + ">")
	m.open = tag
	return true
}

func (m *mdRenderer) render(content string) string {
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")

		if strings.HasPrefix(line, "```") {
			if m.open == "pre" {
				m.close()
			} else {
				m.close()
				m.b.WriteString(`<pre class="code-block"><code>`)
				m.open = "pre"
			}
			continue
		}
		if m.open == "pre" {
			m.b.WriteString(html.EscapeString(line))
			m.b.WriteByte('\n')
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			m.close()
		case strings.HasPrefix(line, "---"):
			m.close()
			m.b.WriteString("<hr/>")
		case strings.HasPrefix(line, "#"):
			level := len(line) - len(strings.TrimLeft(line, "#"))
			if level > 3 || !strings.HasPrefix(line[level:], " ") {
				m.paragraph(trimmed)
				continue
			}
			m.close()
			tag := "h" + strconv.Itoa(level)
			m.b.WriteString("<" + tag + ">" + m.inline(strings.TrimSpace(line[level:])) + "</" + tag + ">")
		case strings.HasPrefix(line, "- "):
			m.enter("ul")
			m.b.WriteString("<li>" + m.inline(strings.TrimSpace(line[2:])) + "</li>")
		case reOrderedList.MatchString(line):
			m.enter("ol")
			m.b.WriteString("<li>" + m.inline(strings.TrimSpace(reOrderedList.ReplaceAllString(line, ""))) + "</li>")
		case strings.HasPrefix(line, "> "):
			if !m.enter("blockquote") {
				m.b.WriteByte(' ')
			}
			m.b.WriteString(m.inline(strings.TrimSpace(line[2:])))
		default:
			m.paragraph(trimmed)
		}
	}
	m.close()
	return m.b.String()
}

func (m *mdRenderer) paragraph(text string) {
	if !m.enter("p") {
		m.b.WriteByte(' ')
	}
	m.b.WriteString(m.inline(text))
}

// inline applies images, links, code spans and emphasis to s.
func (m *mdRenderer) inline(s string) string {
	escaped := html.EscapeString(s)

	escaped = reImg.ReplaceAllStringFunc(escaped, func(match string) string {
		g := reImg.FindStringSubmatch(match)
		return m.image(g[1], g[2], g[3], g[4], g[5])
	})
	escaped = reLink.ReplaceAllStringFunc(escaped, func(match string) string {
		g := reLink.FindStringSubmatch(match)
		href := safeURL(g[2])
		if href == "" {
			return g[1]
		}
		return `<a href="` + href + `">` + g[1] + `</a>`
	})

	var spans []string
	escaped = reInlineCode.ReplaceAllStringFunc(escaped, func(match string) string {
		g := reInlineCode.FindStringSubmatch(match)
		spans = append(spans, "<code>"+g[1]+"</code>")
		return "\x00C" + strconv.Itoa(len(spans)-1) + "\x00"
	})
	escaped = outsideTags(escaped, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		return reItalic.ReplaceAllString(seg, "<em>$1</em>")
	})
	for i, span := range spans {
		escaped = strings.Replace(escaped, "\x00C"+strconv.Itoa(i)+"\x00", span, 1)
	}
	return escaped
}

func (m *mdRenderer) image(alt, src, opts, width, height string) string {
	props := ImageProps{
		Src:    html.UnescapeString(strings.TrimSpace(src)),
		Alt:    html.UnescapeString(alt),
		Width:  defaultImageWidth,
		Height: defaultImageHeight,
	}
	if width != "" && height != "" {
		props.Width, _ = strconv.Atoi(width)
		props.Height, _ = strconv.Atoi(height)
	}
	for _, opt := range strings.Fields(opts) {
		switch opt {
		case "blur":
			props.Blur = true
		case "priority":
			props.Priority = true
		}
	}

	if optimizer.IsExternal(props.Src) {
		if safeURL(src) == "" {
			return alt
		}
		return imgTag(props.Src, props, "")
	}
	out, err := imageHTML(m.rc, props)
	if err != nil {
		if m.err == nil {
			m.err = err
		}
		return alt
	}
	return out
}

// outsideTags applies fn to the text between HTML tags only.
func outsideTags(s string, fn func(string) string) string {
	var b strings.Builder
	for len(s) > 0 {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			b.WriteString(fn(s))
			break
		}
		b.WriteString(fn(s[:lt]))
		gt := strings.IndexByte(s[lt:], '>')
		if gt < 0 {
			b.WriteString(s[lt:])
			break
		}
		b.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return b.String()
}

// safeURL returns raw escaped for an attribute, or "" when its scheme is not
// one a page may link to.
func safeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
