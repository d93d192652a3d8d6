package pages

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

//go:embed public
var publicFiles embed.FS

type Pages struct {
	router  *mux.Router
	session *sessions.CookieStore
	log     *zap.Logger
	*Options
	*Manifest
	Table      *Table
	Components map[string]*Component

	nav       []map[string]interface{}
	templates map[string]*raymond.Template
}

// Mount attaches a handler under a path prefix ahead of the page routes.
type Mount struct {
	Prefix  string
	Handler http.Handler
}

type Options struct {
	ManifestPath       string
	ComponentFS        fs.FS // defaults to the embedded components
	ComponentDir       string
	Routes             []Route // defaults to DefaultRoutes
	ForceSSL           bool
	EnableSessionStore bool
	SessionKey         []byte // hash key, 32 or 64 bytes
	Mounts             []Mount
	Logger             *zap.Logger
}

var (
	DefaultOutlet = "router-outlet"
	DefaultLayout = "layout"
	SessionName   = "skillforge"

	chrome        = []string{"header", "sidebar", "footer"}
	errorFlashKey = "_error"
)

func New(opt *Options) (*Pages, error) {
	if opt == nil {
		opt = new(Options)
	}
	p := &Pages{
		Options:   opt,
		log:       opt.Logger,
		templates: map[string]*raymond.Template{},
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}

	if opt.EnableSessionStore {
		if n := len(opt.SessionKey); n != 32 && n != 64 {
			return nil, errors.New("invalid session store key length: must be 32 or 64 bytes")
		}
		p.session = sessions.NewCookieStore(opt.SessionKey)
		p.session.Options.HttpOnly = true
		p.session.Options.SameSite = http.SameSiteLaxMode
		p.session.Options.Secure = opt.ForceSSL
	}

	var err error
	if p.Manifest, err = loadManifest(opt.ManifestPath); err != nil {
		return nil, err
	}

	fsys, dir := opt.ComponentFS, opt.ComponentDir
	if fsys == nil {
		fsys, dir = defaultComponents, "components"
	}
	if len(dir) == 0 {
		dir = "."
	}
	if p.Components, err = LoadComponents(fsys, dir); err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}

	routes := opt.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	if p.Table, err = NewTable(routes...); err != nil {
		return nil, err
	}

	for _, name := range append([]string{p.Manifest.Layout}, chrome...) {
		if _, ok := p.Components[name]; !ok {
			return nil, errors.New("component " + name + " doesn't exist")
		}
	}
	for _, r := range p.Table.Components() {
		if _, ok := p.Components[r.Component]; !ok {
			return nil, errors.New("component " + r.Component + " doesn't exist")
		}
	}
	p.nav = navItems(p.Table)

	return p, nil
}

// Bind attaches a data loader and a form action to a page unit. Either may
// be nil.
func (p *Pages) Bind(name string, data DataFunc, action ActionFunc) error {
	c, ok := p.Components[name]
	if !ok {
		return errors.New("component " + name + " doesn't exist")
	}
	c.Data = data
	c.Action = action
	return nil
}

func (p *Pages) BuildRouter() (*mux.Router, error) {
	p.router = mux.NewRouter()
	p.router.Use(RequestLogger(p.log), p.withMiddleware)

	shell := p.Components[p.Manifest.Layout].Template.Clone()
	registerHelpers(shell, p.Manifest)
	for _, name := range chrome {
		shell.RegisterPartialTemplate(name, p.Components[name].Template)
	}

	// one template per component route, the page unit filling the outlet
	for _, route := range p.Table.Components() {
		templ, err := p.RenderRoute(shell, route)
		if err != nil {
			return p.router, err
		}
		p.templates[route.Path] = templ
	}

	// serve static files
	public, err := fs.Sub(publicFiles, "public")
	if err != nil {
		return p.router, err
	}
	p.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(public))))

	for _, m := range p.Mounts {
		p.router.PathPrefix(m.Prefix).Handler(m.Handler)
	}

	p.router.PathPrefix("/").HandlerFunc(p.handle)

	return p.router, nil
}

func (p *Pages) RenderRoute(layout *raymond.Template, route Route) (*raymond.Template, error) {
	component, ok := p.Components[route.Component]
	if !ok {
		return nil, errors.New("component " + route.Component + " doesn't exist")
	}
	body := layout.Clone()
	body.RegisterPartialTemplate(DefaultOutlet, component.Template)
	return body, nil
}

// Render executes the compiled template of c.Route.
func (p *Pages) Render(c *Context) (string, error) {
	templ, ok := p.templates[c.Route.Path]
	if !ok {
		return "", fmt.Errorf("route %q is not built", c.Route.URL())
	}
	return templ.ExecWith(p.vars(c), c.frame())
}

func (p *Pages) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.ForceSSL && r.Header.Get("X-Forwarded-Proto") == "http" {
			http.Redirect(w, r, "https://"+getHost(r)+r.URL.RequestURI(), http.StatusMovedPermanently)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Pages) handle(w http.ResponseWriter, r *http.Request) {
	res := p.Table.Resolve(r.URL.Path)
	if res.Redirected {
		p.log.Debug("redirecting unmatched path",
			zap.String("path", r.URL.Path),
			zap.String("to", res.Route.URL()))
		http.Redirect(w, r, res.Route.URL(), http.StatusFound)
		return
	}

	c := p.Components[res.Route.Component]
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		p.serve(w, r, res.Route, c, nil)
	case http.MethodPost:
		if c.Action == nil {
			p.methodNotAllowed(w, c)
			return
		}
		p.act(w, r, res.Route, c)
	default:
		p.methodNotAllowed(w, c)
	}
}

func (p *Pages) methodNotAllowed(w http.ResponseWriter, c *Component) {
	allow := []string{http.MethodGet, http.MethodHead}
	if c.Action != nil {
		allow = append(allow, http.MethodPost)
	}
	w.Header().Set("Allow", strings.Join(allow, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func (p *Pages) serve(w http.ResponseWriter, r *http.Request, route Route, c *Component, ctx *Context) {
	if ctx == nil {
		ctx = &Context{}
	}
	ctx.Route = route

	s := p.getSession(r)
	var dirty bool
	ctx.Locale, dirty = p.locale(r, s)
	if s != nil {
		for _, f := range s.Flashes() {
			if msg, ok := f.(string); ok {
				ctx.Flashes = append(ctx.Flashes, msg)
				dirty = true
			}
		}
		for _, f := range s.Flashes(errorFlashKey) {
			if msg, ok := f.(string); ok {
				ctx.Error = msg
				dirty = true
			}
		}
		if dirty {
			if err := s.Save(r, w); err != nil {
				p.log.Warn("saving session", zap.Error(err))
			}
		}
	}

	if c.Data != nil {
		data, err := c.Data(r)
		if err != nil {
			p.log.Warn("loading page data",
				zap.String("component", c.Name),
				zap.Error(err))
			if len(ctx.Error) == 0 {
				ctx.Error = err.Error()
			}
		} else {
			ctx.Data = data
		}
	}

	html, err := p.Render(ctx)
	if err != nil {
		p.log.Error("rendering page",
			zap.String("component", c.Name),
			zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

// act runs a page action then redirects back to the page with the outcome
// flashed. Without a session store the page is rendered in place.
func (p *Pages) act(w http.ResponseWriter, r *http.Request, route Route, c *Component) {
	msg, err := c.Action(r)
	if err != nil {
		p.log.Warn("page action failed",
			zap.String("component", c.Name),
			zap.Error(err))
	}

	s := p.getSession(r)
	if s == nil {
		ctx := new(Context)
		if err != nil {
			ctx.Error = err.Error()
		} else if len(msg) > 0 {
			ctx.Flashes = []string{msg}
		}
		p.serve(w, r, route, c, ctx)
		return
	}

	if err != nil {
		s.AddFlash(err.Error(), errorFlashKey)
	} else if len(msg) > 0 {
		s.AddFlash(msg)
	}
	if err := s.Save(r, w); err != nil {
		p.log.Warn("saving session", zap.Error(err))
	}
	http.Redirect(w, r, route.URL(), http.StatusSeeOther)
}

func (p *Pages) getSession(r *http.Request) *sessions.Session {
	if p.session == nil {
		return nil
	}
	s, err := p.session.Get(r, SessionName)
	if err != nil {
		// undecodable cookie, start over with the fresh session
		p.log.Debug("decoding session", zap.Error(err))
	}
	return s
}

// locale picks ?lang= when known, then the session, then the manifest
// default. changed reports whether the session was updated.
func (p *Pages) locale(r *http.Request, s *sessions.Session) (locale string, changed bool) {
	if l := r.URL.Query().Get("lang"); len(l) > 0 && p.HasLocale(l) {
		if s != nil && s.Values["lang"] != l {
			s.Values["lang"] = l
			changed = true
		}
		return l, changed
	}
	if s != nil {
		if l, ok := s.Values["lang"].(string); ok && p.HasLocale(l) {
			return l, false
		}
	}
	return p.DefaultLocale, false
}
