package routing

import (
	"fmt"
	"strings"
)

type RouteClass string

const (
	RouteClassInternalAPI RouteClass = "internal_api"
	RouteClassOps         RouteClass = "ops"
	RouteClassUnknown     RouteClass = "unknown"
)

type declaredRoute struct {
	path    string
	pattern PathPattern
	methods map[string]bool
	rc      RouteClass
}

func (d declaredRoute) matches(path string) bool {
	return d.path == path || d.pattern.Match(path)
}

// Classifier answers which class a request path belongs to, and whether a
// method and pattern pair is declared for one allowlist entrypoint.
type Classifier struct {
	routes []declaredRoute
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, fmt.Errorf("allowlist: entrypoint %q not declared", entrypoint)
	}
	if len(ep.Routes) == 0 {
		return nil, fmt.Errorf("allowlist: entrypoint %q has no routes", entrypoint)
	}

	c := &Classifier{routes: make([]declaredRoute, 0, len(ep.Routes))}
	for i, r := range ep.Routes {
		rc := RouteClass(r.RouteClass)
		if r.Path == "" || (rc != RouteClassInternalAPI && rc != RouteClassOps) {
			return nil, fmt.Errorf("allowlist: %s route #%d is invalid", entrypoint, i+1)
		}
		d := declaredRoute{path: r.Path, rc: rc, methods: make(map[string]bool, len(r.Methods))}
		d.pattern, _ = parsePathPattern(r.Path)
		for _, m := range r.Methods {
			d.methods[strings.ToUpper(strings.TrimSpace(m))] = true
		}
		c.routes = append(c.routes, d)
	}
	return c, nil
}

// Classify prefers exact allowlist paths over patterns. Undeclared paths under
// /{module}/api still answer as internal API so their 404s are JSON.
func (c *Classifier) Classify(path string) RouteClass {
	for _, d := range c.routes {
		if d.path == path {
			return d.rc
		}
	}
	for _, d := range c.routes {
		if d.matches(path) {
			return d.rc
		}
	}
	if isModuleInternalAPI(path) {
		return RouteClassInternalAPI
	}
	return RouteClassUnknown
}

// Declares reports whether the allowlist carries pattern for method. A route
// without methods accepts any.
func (c *Classifier) Declares(method string, pattern string) bool {
	for _, d := range c.routes {
		if d.path != pattern {
			continue
		}
		if len(d.methods) == 0 || d.methods[strings.ToUpper(method)] {
			return true
		}
	}
	return false
}

func isModuleInternalAPI(path string) bool {
	rest, ok := strings.CutPrefix(path, "/")
	if !ok {
		return false
	}
	module, after, ok := strings.Cut(rest, "/")
	if !ok || module == "" {
		return false
	}
	return after == "api" || strings.HasPrefix(after, "api/")
}
