package stamp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when no --config
// flag is given. It may be absent.
const DefaultConfigFile = "stamp.yml"

// Config holds the settings of a build or preview server.
//
// Values are resolved in layers, each overriding the previous one: the
// defaults from DefaultConfig, the config file, STAMP_* environment
// variables and finally command line flags.
type Config struct {
	// Components is the directory holding the component definitions.
	Components string `yaml:"components"`

	// Source is the root of the document tree.
	Source string `yaml:"source"`

	// Out receives the expanded tree.
	Out string `yaml:"out"`

	// SelfExpand expands component references inside templates before any
	// document is processed.
	SelfExpand bool `yaml:"self_expand"`

	// Markdown renders .md documents to HTML before expansion.
	Markdown bool `yaml:"markdown"`

	// Workers bounds the number of documents processed at once. Zero means
	// one per CPU.
	Workers int `yaml:"workers"`

	// Reindent is a command run on every expanded file, e.g.
	// "tidy -q -m -i". The file path is appended as the last argument.
	Reindent string `yaml:"reindent"`

	// Annotate marks component boundaries with comments in the output.
	Annotate bool `yaml:"annotate"`

	// AllowShadowing lets a later definition replace an earlier one of the
	// same name instead of failing the load.
	AllowShadowing bool `yaml:"allow_shadowing"`

	// Addr is the listen address of the preview server.
	Addr string `yaml:"addr"`

	// LogLevel is one of logrus' level names.
	LogLevel string `yaml:"log_level"`

	// DevMode injects the live reload script into served pages. It is set
	// by the serve task, never read from the file.
	DevMode bool `yaml:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Components: "components",
		Source:     ".",
		Out:        "out",
		SelfExpand: true,
		Addr:       "127.0.0.1:3000",
		LogLevel:   "info",
	}
}

// LoadFile merges the YAML file at path into c. Keys absent from the file
// keep their current value. A missing file is an error only when required
// is set.
func (c *Config) LoadFile(path string, required bool) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges STAMP_* environment variables into c.
func (c *Config) LoadEnv() error {
	c.Components = envy.Get("STAMP_COMPONENTS", c.Components)
	c.Source = envy.Get("STAMP_SOURCE", c.Source)
	c.Out = envy.Get("STAMP_OUT", c.Out)
	c.Reindent = envy.Get("STAMP_REINDENT", c.Reindent)
	c.Addr = envy.Get("STAMP_ADDR", c.Addr)
	c.LogLevel = envy.Get("STAMP_LOG_LEVEL", c.LogLevel)

	var err error
	if c.Workers, err = envInt("STAMP_WORKERS", c.Workers); err != nil {
		return err
	}
	if c.SelfExpand, err = envBool("STAMP_SELF_EXPAND", c.SelfExpand); err != nil {
		return err
	}
	if c.Markdown, err = envBool("STAMP_MARKDOWN", c.Markdown); err != nil {
		return err
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v := envy.Get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := envy.Get(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// flagSet holds the flags shared by the build and serve tasks. Values are
// copied into a Config only for flags given on the command line.
type flagSet struct {
	*pflag.FlagSet

	config       string
	components   string
	source       string
	out          string
	noSelfExpand bool
	markdown     bool
	workers      int
	reindent     string
	annotate     bool
	shadowing    bool
	addr         string
	logLevel     string
}

func newFlagSet(name string) *flagSet {
	f := &flagSet{FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	def := DefaultConfig()

	f.StringVar(&f.config, "config", DefaultConfigFile, "configuration file")
	f.StringVarP(&f.components, "components", "c", def.Components, "components directory")
	f.StringVarP(&f.source, "source", "s", def.Source, "source directory")
	f.StringVarP(&f.out, "out", "o", def.Out, "output directory")
	f.BoolVar(&f.noSelfExpand, "no-self-expand", false, "do not expand component references inside templates")
	f.BoolVar(&f.markdown, "markdown", false, "render .md documents to HTML")
	f.IntVarP(&f.workers, "workers", "w", 0, "documents processed at once (0: one per CPU)")
	f.StringVar(&f.reindent, "reindent", "", "command run on each expanded file")
	f.BoolVar(&f.annotate, "annotate", false, "mark component boundaries with comments")
	f.BoolVar(&f.shadowing, "allow-shadowing", false, "let later definitions replace earlier ones")
	f.StringVar(&f.addr, "addr", def.Addr, "preview server listen address")
	f.StringVar(&f.logLevel, "log-level", def.LogLevel, "log level")
	return f
}

func (f *flagSet) apply(c *Config) {
	set := func(name string, fn func()) {
		if f.Changed(name) {
			fn()
		}
	}
	set("components", func() { c.Components = f.components })
	set("source", func() { c.Source = f.source })
	set("out", func() { c.Out = f.out })
	set("no-self-expand", func() { c.SelfExpand = !f.noSelfExpand })
	set("markdown", func() { c.Markdown = f.markdown })
	set("workers", func() { c.Workers = f.workers })
	set("reindent", func() { c.Reindent = f.reindent })
	set("annotate", func() { c.Annotate = f.annotate })
	set("allow-shadowing", func() { c.AllowShadowing = f.shadowing })
	set("addr", func() { c.Addr = f.addr })
	set("log-level", func() { c.LogLevel = f.logLevel })
}

// LoadConfig resolves the configuration of a task from its arguments and
// returns it with the remaining positional arguments.
func LoadConfig(task string, args []string) (Config, []string, error) {
	f := newFlagSet(task)
	if err := f.Parse(args); err != nil {
		return Config{}, nil, err
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(f.config, f.Changed("config")); err != nil {
		return Config{}, nil, err
	}
	if err := cfg.LoadEnv(); err != nil {
		return Config{}, nil, err
	}
	f.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, f.Args(), nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Components == "" {
		return fmt.Errorf("stamp: components directory is required")
	}
	if c.Source == "" {
		return fmt.Errorf("stamp: source directory is required")
	}
	if c.Out == "" {
		return fmt.Errorf("stamp: output directory is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("stamp: workers must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("stamp: %w", err)
	}
	return nil
}

// ReindentCommand splits Reindent into a command and its arguments.
func (c Config) ReindentCommand() []string {
	return strings.Fields(c.Reindent)
}

// NewLogger returns a logger writing at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
