package pages

import (
	"embed"
	"errors"
	"fmt"
	"sort"
)

//go:embed manifest.yaml
var defaultManifest embed.FS

type Manifest struct {
	Title         string                       `yaml:"title"`
	DefaultLocale string                       `yaml:"default_locale"`
	Layout        string                       `yaml:"layout"`
	Translations  map[string]map[string]string `yaml:"translations"`
}

// Route is a single entry of the route table. An entry without a component
// redirects to RedirectTo.
type Route struct {
	Path       string `yaml:"path"`
	Component  string `yaml:"component"`
	RedirectTo string `yaml:"redirect_to"`
	Title      string `yaml:"title"`
}

// Wildcard matches any path not matched by an earlier entry.
const Wildcard = "**"

func (r Route) IsRedirect() bool {
	return len(r.Component) == 0
}

func (r Route) URL() string {
	return "/" + r.Path
}

// DefaultRoutes is the portal's route table.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "", Component: "accueil", Title: "nav.accueil"},
		{Path: "fichiers", Component: "fichiers", Title: "nav.fichiers"},
		{Path: "auth", Component: "authentification", Title: "nav.auth"},
		{Path: "supervision", Component: "supervision", Title: "nav.supervision"},
		{Path: Wildcard, RedirectTo: ""},
	}
}

func loadManifest(path string) (*Manifest, error) {
	m := new(Manifest)
	var err error
	if len(path) > 0 {
		err = readAndUnmarshal(path, m)
	} else {
		var b []byte
		if b, err = defaultManifest.ReadFile("manifest.yaml"); err == nil {
			err = unmarshal(b, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if len(m.Layout) == 0 {
		m.Layout = DefaultLayout
	}
	if m.Translations == nil {
		m.Translations = map[string]map[string]string{}
	}
	if len(m.DefaultLocale) == 0 {
		return nil, errors.New("manifest: default_locale is required")
	}
	if _, ok := m.Translations[m.DefaultLocale]; !ok {
		return nil, fmt.Errorf("manifest: no translations for default locale %q", m.DefaultLocale)
	}
	return m, nil
}

// Translate looks key up in locale, then in the default locale. The key
// itself is returned when neither has it.
func (m *Manifest) Translate(locale, key string) string {
	if v, ok := m.Translations[locale][key]; ok {
		return v
	}
	if v, ok := m.Translations[m.DefaultLocale][key]; ok {
		return v
	}
	return key
}

func (m *Manifest) HasLocale(locale string) bool {
	_, ok := m.Translations[locale]
	return ok
}

func (m *Manifest) Locales() []string {
	var locales []string
	for l := range m.Translations {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	return locales
}
