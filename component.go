package pages

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/aymerick/raymond"
)

//go:embed components/*.hbs
var defaultComponents embed.FS

// DataFunc loads the data a page unit renders. The result is exposed to the
// template as "data".
type DataFunc func(r *http.Request) (map[string]interface{}, error)

// ActionFunc handles a form post to a page unit and returns the message
// flashed to the user.
type ActionFunc func(r *http.Request) (string, error)

type Component struct {
	Name     string
	Raw      string
	Template *raymond.Template

	Data   DataFunc
	Action ActionFunc
}

func NewComponent(name string, raw string) (*Component, error) {
	tpl, err := raymond.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", name, err)
	}
	return &Component{
		Name:     name,
		Raw:      raw,
		Template: tpl,
	}, nil
}

// LoadComponents reads every *.hbs file in dir. Components are named after
// the file without its extension.
func LoadComponents(fsys fs.FS, dir string) (map[string]*Component, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	components := map[string]*Component{}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".hbs" {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(e.Name(), ".hbs")
		c, err := NewComponent(name, string(b))
		if err != nil {
			return nil, err
		}
		components[name] = c
	}
	return components, nil
}
