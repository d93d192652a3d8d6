package pages

import (
	"errors"
	"fmt"
	"strings"
)

// Table is an ordered, immutable route table.
type Table struct {
	routes   []Route
	index    map[string]int
	fallback int
}

// Resolution is the outcome of resolving a request path.
type Resolution struct {
	Route      Route
	Requested  string
	Redirected bool
}

var (
	ErrDuplicateRoute   = errors.New("duplicate route path")
	ErrWildcardNotLast  = errors.New("wildcard route must be last")
	ErrBadRedirect      = errors.New("redirect target is not a component route")
	ErrNoComponentRoute = errors.New("route table has no component route")
)

func NewTable(routes ...Route) (*Table, error) {
	t := &Table{
		routes:   make([]Route, 0, len(routes)),
		index:    map[string]int{},
		fallback: -1,
	}

	for i, r := range routes {
		r.Path = normalizePath(r.Path)
		r.RedirectTo = normalizePath(r.RedirectTo)
		if _, ok := t.index[r.Path]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoute, r.Path)
		}
		if r.Path == Wildcard && i != len(routes)-1 {
			return nil, ErrWildcardNotLast
		}
		if len(r.Component) > 0 && len(r.RedirectTo) > 0 {
			return nil, fmt.Errorf("%w: %q has both a component and a redirect", ErrBadRedirect, r.Path)
		}
		t.index[r.Path] = i
		t.routes = append(t.routes, r)
		if t.fallback < 0 && !r.IsRedirect() {
			t.fallback = i
		}
	}

	if t.fallback < 0 {
		return nil, ErrNoComponentRoute
	}

	// redirects must land on a component in one hop
	for _, r := range t.routes {
		if !r.IsRedirect() {
			continue
		}
		target, ok := t.index[r.RedirectTo]
		if !ok || t.routes[target].IsRedirect() {
			return nil, fmt.Errorf("%w: %q -> %q", ErrBadRedirect, r.Path, r.RedirectTo)
		}
	}

	return t, nil
}

// Resolve maps a request path to a component route. The first matching entry
// wins; unmatched paths go through the wildcard. Resolve never fails.
func (t *Table) Resolve(p string) Resolution {
	res := Resolution{Requested: p}
	key := normalizePath(p)

	i, ok := t.index[key]
	if !ok || key == Wildcard {
		if w, hasWildcard := t.index[Wildcard]; hasWildcard {
			i = w
		} else {
			i = t.fallback
		}
		res.Redirected = true
	}

	r := t.routes[i]
	if r.IsRedirect() {
		r = t.routes[t.index[r.RedirectTo]]
		res.Redirected = true
	}
	res.Route = r
	return res
}

func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Components returns the component routes in declaration order.
func (t *Table) Components() []Route {
	var out []Route
	for _, r := range t.routes {
		if !r.IsRedirect() {
			out = append(out, r)
		}
	}
	return out
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.Trim(p, "/")
}
