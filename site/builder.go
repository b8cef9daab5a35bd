// Package site builds an output tree from a source tree: markup documents
// are expanded against a component registry, Markdown documents are
// rendered to HTML first, and every other file is copied as is.
//
// Documents are processed by a bounded pool of workers. A failing document
// is reported and produces no output file; it never stops the others.
//
// Usage:
//
//	b := site.NewBuilder(reg, site.Options{SourceDir: "src", OutDir: "out"})
//	report, err := b.Build(ctx)
//	if err != nil {
//	    return err // the tree could not be read or written at all
//	}
//	for _, f := range report.Failed {
//	    log.Println(f)
//	}
package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/johnjansen/stamp/components"
)

// Options configures a Builder.
type Options struct {
	// SourceDir is the root of the source tree.
	SourceDir string

	// OutDir receives the mirrored tree. It is skipped when it lies inside
	// SourceDir.
	OutDir string

	// ComponentsDir is skipped when it lies inside SourceDir.
	ComponentsDir string

	// DocumentExts lists the extensions of markup documents to expand.
	// Defaults to .html and .htm.
	DocumentExts []string

	// Markdown renders .md files to .html before expansion. Without it,
	// Markdown files are copied.
	Markdown bool

	// Workers bounds the number of documents processed at once. Defaults to
	// the number of CPUs.
	Workers int

	// Reindent is a command run on every expanded document, with the
	// output path appended as its last argument.
	Reindent []string

	// Annotate marks component boundaries with comments in the output.
	Annotate bool

	Logger logrus.FieldLogger
}

// DefaultDocumentExts are the extensions expanded when Options.DocumentExts
// is empty.
var DefaultDocumentExts = []string{".html", ".htm"}

// Builder turns a source tree into an output tree.
type Builder struct {
	opts     Options
	registry *components.Registry
	expander *components.Expander
	markdown goldmark.Markdown
	log      logrus.FieldLogger
}

// NewBuilder creates a builder that expands documents against reg. reg is
// only read; seal it (or run SelfExpand) before building.
func NewBuilder(reg *components.Registry, opts Options) *Builder {
	if len(opts.DocumentExts) == 0 {
		opts.DocumentExts = DefaultDocumentExts
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Builder{
		opts:     opts,
		registry: reg,
		expander: &components.Expander{Annotate: opts.Annotate},
		markdown: newMarkdown(),
		log:      log,
	}
}

type taskKind int

const (
	copyFile taskKind = iota
	expandDocument
	renderMarkdown
)

func (k taskKind) String() string {
	switch k {
	case expandDocument:
		return "expand"
	case renderMarkdown:
		return "markdown"
	default:
		return "copy"
	}
}

type task struct {
	kind taskKind
	rel  string // relative to the source root
	src  string
	dst  string
}

type result struct {
	task task
	err  error
}

// Build walks the source tree and writes the output tree. The returned
// error covers problems with the tree itself and cancellation; per-document
// failures are collected in the report.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	tasks, err := b.plan()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for r := range b.run(ctx, tasks) {
		if r.err != nil {
			report.Failed = append(report.Failed, &DocumentError{Path: r.task.rel, Stage: r.task.kind.String(), Err: r.err})
			b.log.WithField("document", r.task.rel).WithError(r.err).Error("document failed")
			continue
		}
		if r.task.kind == copyFile {
			report.Copied = append(report.Copied, r.task.rel)
		} else {
			report.Written = append(report.Written, r.task.rel)
			b.log.WithField("document", r.task.rel).Info("converted")
		}
	}
	report.sort()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// plan walks the source tree, recreates its directories under the output
// root and returns the files to process.
func (b *Builder) plan() ([]task, error) {
	root, err := filepath.Abs(b.opts.SourceDir)
	if err != nil {
		return nil, err
	}
	out, err := filepath.Abs(b.opts.OutDir)
	if err != nil {
		return nil, err
	}
	skip := map[string]bool{out: true}
	if b.opts.ComponentsDir != "" {
		comps, err := filepath.Abs(b.opts.ComponentsDir)
		if err != nil {
			return nil, err
		}
		skip[comps] = true
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", root)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var tasks []task
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || skip[path] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			return os.MkdirAll(filepath.Join(out, rel), 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		t := task{kind: copyFile, rel: rel, src: path, dst: filepath.Join(out, rel)}
		switch ext := strings.ToLower(filepath.Ext(path)); {
		case hasExt(ext, b.opts.DocumentExts):
			t.kind = expandDocument
		case b.opts.Markdown && (ext == ".md" || ext == ".markdown"):
			t.kind = renderMarkdown
			t.dst = strings.TrimSuffix(t.dst, filepath.Ext(t.dst)) + ".html"
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source directory: %w", err)
	}
	return tasks, nil
}

// run processes tasks on a bounded pool of workers. The returned channel is
// closed once every started task has reported.
func (b *Builder) run(ctx context.Context, tasks []task) <-chan result {
	jobs := make(chan task)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < b.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				results <- result{task: t, err: b.process(ctx, t)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range tasks {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func (b *Builder) process(ctx context.Context, t task) error {
	switch t.kind {
	case copyFile:
		return copyRegular(t.src, t.dst)
	case renderMarkdown, expandDocument:
		return b.convert(ctx, t)
	}
	return nil
}

func (b *Builder) convert(ctx context.Context, t task) error {
	src, err := os.ReadFile(t.src)
	if err != nil {
		return err
	}

	if t.kind == renderMarkdown {
		src, err = b.renderMarkdown(src)
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
	}

	out, err := b.expander.Document(t.rel, string(src), b.registry)
	if err != nil {
		// A failed document leaves no output behind, not even a stale one.
		if rmErr := os.Remove(t.dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			b.log.WithField("document", t.rel).WithError(rmErr).Warn("removing stale output")
		}
		return err
	}

	if err := os.WriteFile(t.dst, []byte(out), 0o644); err != nil {
		return err
	}

	if len(b.opts.Reindent) > 0 {
		if err := reindent(ctx, b.opts.Reindent, t.dst); err != nil {
			return err
		}
	}
	return nil
}

func copyRegular(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func hasExt(ext string, exts []string) bool {
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Report summarizes a build. Paths are relative to the source root, sorted.
type Report struct {
	Written []string
	Copied  []string
	Failed  []*DocumentError
}

// Err returns nil when every document succeeded, or an error joining every
// document failure.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (r *Report) sort() {
	sort.Strings(r.Written)
	sort.Strings(r.Copied)
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Path < r.Failed[j].Path })
}

// DocumentError is the failure of a single file.
type DocumentError struct {
	Path  string
	Stage string
	Err   error
}

func (e *DocumentError) Error() string {
	msg := strings.TrimPrefix(e.Err.Error(), e.Path+": ")
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Stage, msg)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}
