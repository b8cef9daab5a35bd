// Package stamp expands markup components into static sites.
//
// A component is a named template with parameters, defined in its own file
// under the components directory. Every element of a document named after
// a component is replaced by the component's template, with each <P/>
// placeholder substituted by the content of the instance's <P> child.
//
// Kit ties the pieces together for the command line: it loads the
// registry, builds the output tree, and serves the source tree with live
// expansion and reload. Wire installs the preview routes into a Buffalo
// application:
//
//	kit, err := stamp.New(cfg)
//	app := buffalo.New(buffalo.Options{Addr: cfg.Addr})
//	stamp.Wire(app, kit)
package stamp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/logger"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/johnjansen/stamp/components"
	"github.com/johnjansen/stamp/livereload"
	"github.com/johnjansen/stamp/secure"
	"github.com/johnjansen/stamp/site"
)

// Kit holds the loaded registry and the services built on it.
type Kit struct {
	// Config the kit was created with.
	Config Config

	// Broker notifies connected browsers when the sources change.
	Broker *livereload.Broker

	// Cache keeps expanded pages between requests. Reload flushes it.
	Cache *gocache.Cache

	Logger logrus.FieldLogger

	registry atomic.Pointer[components.Registry]
}

// New loads the components named by cfg and returns a ready kit.
func New(cfg Config) (*Kit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kit := &Kit{
		Config: cfg,
		Cache:  gocache.New(10*time.Minute, 20*time.Minute),
		Logger: cfg.NewLogger(),
	}
	kit.Broker = livereload.NewBroker(livereload.Options{Logger: kit.Logger})

	reg, err := LoadRegistry(cfg, kit.Logger)
	if err != nil {
		kit.Broker.Shutdown()
		return nil, err
	}
	kit.registry.Store(reg)
	return kit, nil
}

// LoadRegistry reads the component definitions and, unless disabled,
// expands component references inside their templates. The returned
// registry is sealed.
func LoadRegistry(cfg Config, log logrus.FieldLogger) (*components.Registry, error) {
	reg, err := components.Load(cfg.Components, components.LoadOptions{
		AllowShadowing: cfg.AllowShadowing,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	if !cfg.SelfExpand {
		reg.Seal()
		return reg, nil
	}
	if _, err := reg.SelfExpand(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Registry returns the registry currently in use.
func (k *Kit) Registry() *components.Registry {
	return k.registry.Load()
}

// Reload reads the components again and swaps them in. On failure the
// previous registry stays in use. Cached pages are dropped and connected
// browsers are told to reload either way, so a fixed source shows up.
func (k *Kit) Reload(changed ...string) error {
	defer func() {
		k.Cache.Flush()
		k.Broker.Reload(strings.Join(changed, ","))
	}()

	reg, err := LoadRegistry(k.Config, k.Logger)
	if err != nil {
		return err
	}
	k.registry.Store(reg)
	k.Logger.WithField("components", reg.Len()).Info("components reloaded")
	return nil
}

// Build expands the source tree into the output directory.
func (k *Kit) Build(ctx context.Context) (*site.Report, error) {
	b := site.NewBuilder(k.Registry(), site.Options{
		SourceDir:     k.Config.Source,
		OutDir:        k.Config.Out,
		ComponentsDir: k.Config.Components,
		Markdown:      k.Config.Markdown,
		Workers:       k.Config.Workers,
		Reindent:      k.Config.ReindentCommand(),
		Annotate:      k.Config.Annotate,
		Logger:        k.Logger,
	})
	return b.Build(ctx)
}

// Shutdown stops the live reload broker.
func (k *Kit) Shutdown() {
	k.Broker.Shutdown()
}

// Wire installs the preview routes into app:
//
//	GET /__stamp/events  live reload event stream
//	GET /                the source tree, with HTML expanded
//
// Every response carries the headers of secure.Middleware.
// Pages are expanded by components.ExpanderMiddleware. It wraps the page
// handler only, so the event stream keeps its flushing writer.
func Wire(app *buffalo.App, kit *Kit) {
	headers := secure.DefaultOptions()
	headers.DevMode = kit.Config.DevMode
	app.Use(secure.Middleware(headers))

	app.GET(kit.Broker.Path(), kit.Broker.ServeHTTP)

	opts := components.MiddlewareOptions{
		Annotate: kit.Config.Annotate,
		Cache:    kit.Cache,
		Logger:   logger.Logrus{FieldLogger: kit.Logger},
	}
	if kit.Config.DevMode {
		opts.Transforms = append(opts.Transforms, kit.Broker.Inject)
	}
	page := components.ExpanderMiddleware(kit.Registry, opts)(kit.servePage)

	app.GET("/", page)
	app.GET("/{path:.+}", page)
}

// servePage writes a file of the source tree. Directories are served by
// their index.html.
func (k *Kit) servePage(c buffalo.Context) error {
	// Buffalo adds a trailing slash to every route path, so directories are
	// recognized on disk below, never from the URL.
	rel := path.Clean("/" + c.Param("path"))
	if rel == "/" {
		rel = "/index.html"
	}

	root, err := filepath.Abs(k.Config.Source)
	if err != nil {
		return err
	}
	file := filepath.Join(root, filepath.FromSlash(rel))
	if k.hidden(root, file) {
		return c.Error(http.StatusNotFound, fmt.Errorf("%s not found", rel))
	}

	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, "index.html")
		_, err = os.Stat(file)
	}
	if err != nil {
		return c.Error(http.StatusNotFound, fmt.Errorf("%s not found", rel))
	}

	body, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	ctype := mime.TypeByExtension(filepath.Ext(file))
	if ctype == "" {
		ctype = http.DetectContentType(body)
	}
	res := c.Response()
	res.Header().Set("Content-Type", ctype)
	res.WriteHeader(http.StatusOK)
	_, err = res.Write(body)
	return err
}

// hidden reports whether file must not be served: the components and
// output directories and dot files.
func (k *Kit) hidden(root, file string) bool {
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	for _, dir := range []string{k.Config.Components, k.Config.Out} {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if file == abs || strings.HasPrefix(file, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Version returns the current stamp version.
func Version() string {
	return "0.1.0-alpha"
}
