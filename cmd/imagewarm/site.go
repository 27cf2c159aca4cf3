package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/imagewarm"
	"github.com/eringen/imagewarm/introspect"
	"github.com/eringen/imagewarm/views"
)

// site is a directory of Markdown pages.
type site struct {
	dir   string
	pages map[string]string // route path -> Markdown
}

func loadSite(dir string) (*site, error) {
	s := &site{dir: dir, pages: make(map[string]string)}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".md" {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		s.pages[routePath(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	return s, nil
}

// routePath maps "index.md" to "/" and "docs/intro.md" to "/docs/intro".
func routePath(rel string) string {
	name := strings.TrimSuffix(filepath.ToSlash(rel), ".md")
	if name == "index" {
		return "/"
	}
	name = strings.TrimSuffix(name, "/index")
	return "/" + name
}

func (s *site) register(app *imagewarm.App) {
	for path, content := range s.pages {
		app.Page(path, markdownPage(strings.TrimRight(app.Config.URL, "/")+path, content))
	}
	app.Page("/raw/:name", s.rawPage)
}

func markdownPage(url, content string) introspect.RenderFunc {
	meta := views.PageMeta{Title: pageTitle(content), URL: url}
	return func(rc *introspect.RenderContext) templ.Component {
		return views.Layout(meta, views.Markdown(rc, content))
	}
}

// rawPage reads a page file at request time.
func (s *site) rawPage(rc *introspect.RenderContext) templ.Component {
	content, err := introspect.Fetch(rc, func(ctx context.Context) (string, error) {
		name := filepath.Base(rc.Param("name"))
		data, err := os.ReadFile(filepath.Join(s.dir, name+".md"))
		return string(data), err
	})
	if err != nil {
		return nil
	}
	return views.Layout(views.PageMeta{Title: pageTitle(content)}, views.Markdown(rc, content))
}

func pageTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return "Untitled"
}
