package stamp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/logger"
	"github.com/markbates/grift/grift"

	_ "github.com/johnjansen/stamp/generators" // Register generator tasks
	"github.com/johnjansen/stamp/watch"
)

// Stdout receives the tasks' output.
var Stdout io.Writer = os.Stdout

func init() {
	registerTasks()
}

func registerTasks() {
	_ = grift.Namespace("stamp", func() {
		_ = grift.Desc("build", "Expand every document of the source tree into the output directory")
		_ = grift.Add("build", buildTask)

		_ = grift.Desc("serve", "Serve the source tree with live expansion and reload")
		_ = grift.Add("serve", serveTask)

		_ = grift.Desc("components", "List the components and their parameters")
		_ = grift.Add("components", componentsTask)
	})
}

func buildTask(c *grift.Context) error {
	cfg, _, err := LoadConfig("stamp:build", c.Args)
	if err != nil {
		return err
	}

	kit, err := New(cfg)
	if err != nil {
		return err
	}
	defer kit.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := kit.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	for _, f := range report.Failed {
		fmt.Fprintf(Stdout, "❌ %v\n", f)
	}
	fmt.Fprintf(Stdout, "✅ %d expanded, %d copied, %d failed -> %s\n",
		len(report.Written), len(report.Copied), len(report.Failed), cfg.Out)

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed", len(report.Failed))
	}
	return nil
}

func serveTask(c *grift.Context) error {
	cfg, _, err := LoadConfig("stamp:serve", c.Args)
	if err != nil {
		return err
	}
	cfg.DevMode = true

	kit, err := New(cfg)
	if err != nil {
		return err
	}
	defer kit.Shutdown()

	w, err := watch.New(watch.Config{
		Roots:    []string{cfg.Components, cfg.Source},
		Ignore:   []string{cfg.Out},
		Debounce: watch.DefaultConfig().Debounce,
		Logger:   kit.Logger,
	})
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	go kit.follow(changes)

	app := buffalo.New(buffalo.Options{
		Name:      "stamp",
		Addr:      cfg.Addr,
		Env:       "development",
		WorkerOff: true,
		Logger:    logger.Logrus{FieldLogger: kit.Logger},
	})
	Wire(app, kit)

	fmt.Fprintf(Stdout, "🚀 Serving %s on http://%s\n", cfg.Source, cfg.Addr)
	return app.Serve()
}

// follow reloads the components when a definition changes, and the
// browsers when anything changes.
func (k *Kit) follow(changes <-chan []string) {
	comps, _ := filepath.Abs(k.Config.Components)
	for batch := range changes {
		defs := false
		for _, p := range batch {
			if strings.HasPrefix(p, comps+string(filepath.Separator)) {
				defs = true
				break
			}
		}
		if !defs {
			k.Broker.Reload(strings.Join(batch, ","))
			continue
		}
		if err := k.Reload(batch...); err != nil {
			k.Logger.WithError(err).Error("reloading components")
		}
	}
}

func componentsTask(c *grift.Context) error {
	cfg, _, err := LoadConfig("stamp:components", c.Args)
	if err != nil {
		return err
	}

	kit, err := New(cfg)
	if err != nil {
		return err
	}
	defer kit.Shutdown()

	reg := kit.Registry()
	fmt.Fprintf(Stdout, "📦 %d component(s) in %s\n", reg.Len(), cfg.Components)
	for _, name := range reg.Names() {
		comp, _ := reg.Lookup(name)
		if len(comp.Parameters) == 0 {
			fmt.Fprintf(Stdout, "   %s\n", name)
			continue
		}
		fmt.Fprintf(Stdout, "   %s (%s)\n", name, strings.Join(comp.Parameters, ", "))
	}
	return nil
}
