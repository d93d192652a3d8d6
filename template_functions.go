package pages

import (
	"net/url"

	"github.com/aymerick/raymond"
)

func registerHelpers(tpl *raymond.Template, m *Manifest) {
	tpl.RegisterHelpers(map[string]interface{}{
		// {{t "nav.accueil"}}
		"t": func(key string, options *raymond.Options) string {
			return m.Translate(options.DataStr("locale"), key)
		},
		// {{pathEscape name}} for a single path segment in an href
		"pathEscape": func(s string) string {
			return url.PathEscape(s)
		},
		// {{navClass path}} marks the entry of the current route
		"navClass": func(p string, options *raymond.Options) string {
			if p == options.DataStr("route") {
				return "active"
			}
			return ""
		},
	})
}
