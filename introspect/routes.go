// Package introspect renders an application once per static route, purely to
// observe which optimized images each page requires.
package introspect

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// Route is one entry of an application's route table.
type Route struct {
	Method string
	Path   string
}

// IsStatic reports whether the path has no variable segments.
func (r Route) IsStatic() bool {
	for _, seg := range strings.Split(r.Path, "/") {
		if strings.HasPrefix(seg, ":") || strings.Contains(seg, "*") ||
			strings.Contains(seg, "{") || strings.Contains(seg, "}") {
			return false
		}
	}
	return true
}

// ConfigurationError reports a route that cannot be enumerated.
type ConfigurationError struct {
	Route  Route
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("route %s %q: %s", e.Route.Method, e.Route.Path, e.Reason)
}

// EnumeratePaths returns the static GET paths of routes in table order with
// duplicates removed. Parameterized routes are dropped, since their images
// cannot be known without request data. Malformed routes are skipped and
// reported.
func EnumeratePaths(routes []Route) ([]string, []error) {
	var (
		paths []string
		errs  []error
		seen  = make(map[string]struct{})
	)
	for _, r := range routes {
		if r.Method != "" && r.Method != http.MethodGet {
			continue
		}
		if reason := checkPath(r.Path); reason != "" {
			errs = append(errs, &ConfigurationError{Route: r, Reason: reason})
			continue
		}
		if !r.IsStatic() {
			continue
		}
		if _, dup := seen[r.Path]; dup {
			continue
		}
		seen[r.Path] = struct{}{}
		paths = append(paths, r.Path)
	}
	return paths, errs
}

func checkPath(p string) string {
	switch {
	case p == "":
		return "empty path"
	case !strings.HasPrefix(p, "/"):
		return "path must start with /"
	case strings.ContainsAny(p, "?#"):
		return "path contains query or fragment"
	case strings.IndexFunc(p, unicode.IsSpace) >= 0:
		return "path contains whitespace"
	}
	return ""
}
