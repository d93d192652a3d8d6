package pages

import (
	"time"

	"github.com/aymerick/raymond"
)

// Context holds what a single render of a page needs.
type Context struct {
	Route   Route
	Locale  string
	Data    map[string]interface{}
	Flashes []string
	Error   string
}

func navItems(t *Table) []map[string]interface{} {
	var items []map[string]interface{}
	for _, r := range t.Components() {
		items = append(items, map[string]interface{}{
			"path":  r.Path,
			"url":   r.URL(),
			"title": r.Title,
		})
	}
	return items
}

func (p *Pages) vars(c *Context) map[string]interface{} {
	return map[string]interface{}{
		"site":    p.Manifest.Title,
		"route":   c.Route.Path,
		"url":     c.Route.URL(),
		"title":   c.Route.Title,
		"nav":     p.nav,
		"locale":  c.Locale,
		"locales": p.Manifest.Locales(),
		"data":    c.Data,
		"flashes": c.Flashes,
		"error":   c.Error,
		"year":    time.Now().Year(),
	}
}

func (c *Context) frame() *raymond.DataFrame {
	frame := raymond.NewDataFrame()
	frame.Set("locale", c.Locale)
	frame.Set("route", c.Route.Path)
	return frame
}
