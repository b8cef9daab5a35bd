// Package watch reports changes under a directory tree, debounced into
// batches.
//
// Editors tend to write a file several times in a row (a temporary file, a
// rename, an attribute change). The Watcher collects events until the tree
// has been quiet for Config.Debounce and then sends the sorted set of
// changed paths as a single batch, so one save triggers one reload:
//
//	w, err := watch.New(watch.DefaultConfig("components", "src"))
//	changes, err := w.Start()
//	defer w.Stop()
//	for batch := range changes {
//	    // reload
//	}
//
// Directories created while watching are added automatically. Hidden
// entries and the directories listed in Config.Ignore never produce events.
package watch

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Config holds watcher configuration options.
type Config struct {
	// Roots are the directories to watch, recursively.
	Roots []string

	// Ignore lists directories whose contents never trigger a change, such
	// as the output directory.
	Ignore []string

	// Debounce is how long the tree must stay quiet before a batch is sent.
	Debounce time.Duration

	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults for watching roots.
func DefaultConfig(roots ...string) Config {
	return Config{
		Roots:    roots,
		Debounce: 200 * time.Millisecond,
	}
}

// Watcher monitors directory trees and sends the set of changed paths.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	roots     []string
	ignore    []string
	debounce  time.Duration
	log       logrus.FieldLogger
	onChange  chan []string
	done      chan struct{}
}

// New creates a watcher. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	w := &Watcher{
		fsWatcher: fsw,
		debounce:  cfg.Debounce,
		log:       log,
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
	}
	for _, r := range cfg.Roots {
		w.roots = append(w.roots, absClean(r))
	}
	for _, i := range cfg.Ignore {
		w.ignore = append(w.ignore, absClean(i))
	}
	return w, nil
}

// Start adds every directory under the roots and begins watching.
// The returned channel receives the sorted paths changed in each batch.
func (w *Watcher) Start() (<-chan []string, error) {
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return nil, err
		}
	}
	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. The channel returned
// by Start is closed once the watcher has stopped.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipped(path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
}

// skipped reports whether path is hidden or inside an ignored directory.
func (w *Watcher) skipped(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	for _, dir := range w.ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// loop processes file system events with debouncing. The change channel is
// closed when it returns.
func (w *Watcher) loop() {
	defer close(w.onChange)

	var (
		timer   *time.Timer
		pending = make(map[string]bool)
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			path := absClean(event.Name)
			if !w.isRelevantEvent(event, path) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					if err := w.addTree(path); err != nil {
						w.log.WithError(err).Warn("watching new directory")
					}
				}
			}

			pending[path] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			timer = nil
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = make(map[string]bool)

			select {
			case w.onChange <- batch:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("file watcher error")

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent filters out attribute changes and paths that are hidden or
// ignored.
func (w *Watcher) isRelevantEvent(event fsnotify.Event, path string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return !w.skipped(path)
}

func absClean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
