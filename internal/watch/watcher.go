// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs a callback when files under a directory change.
// Events are glob-filtered and debounced: a burst of writes inside the
// quiet window collapses into one callback carrying every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// fallbackDebounce is used when Config.Debounce is unset: long enough to
// swallow an editor's write-then-rename dance, short enough to feel
// immediate.
const fallbackDebounce = 500 * time.Millisecond

// hitBuffer sizes the matched-event channel; it absorbs events that arrive
// while the callback is still running.
const hitBuffer = 256

// alwaysIgnored filters the churn no watch target ever wants: VCS innards,
// dependency trees, editor droppings.
var alwaysIgnored = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Patterns select which relative paths trigger the callback, as
	// doublestar globs. Empty selects every non-ignored path.
	Patterns []string

	// Ignore adds globs to the built-in ignore set.
	Ignore []string

	// Debounce is the quiet window after the last event before the
	// callback fires; zero or negative selects the built-in default.
	Debounce time.Duration

	// ClearScreen wipes the terminal (ANSI) before each callback.
	ClearScreen bool

	// BaseDir roots the watch; empty means the working directory.
	BaseDir string

	// OnChange receives the sorted, deduplicated relative paths of one
	// debounced batch. A nil callback turns the watcher into a no-op.
	OnChange func(ctx context.Context, changed []string) error

	// Stdout and Stderr default to the process streams when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Watcher owns one fsnotify instance and the goroutine that filters its
// events into debounced batches. Run may be called once; Close releases
// the watcher if Run never starts.
type Watcher struct {
	base     watchTree
	out      io.Writer
	errOut   io.Writer
	quiet    time.Duration
	clear    bool
	onChange func(ctx context.Context, changed []string) error

	started atomic.Bool
	closed  atomic.Bool
}

// watchTree bundles the filesystem-facing half: the fsnotify handle plus
// the filtering rules applied to everything it reports.
type watchTree struct {
	fsw     *fsnotify.Watcher
	root    string
	want    []string
	ignores []string
}

// New validates cfg, roots the watch at BaseDir, and registers every
// non-ignored directory below it.
func New(cfg Config) (*Watcher, error) {
	root := cfg.BaseDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolving %s: %w", cfg.BaseDir, err)
	}

	for _, pat := range append(append([]string{}, cfg.Patterns...), cfg.Ignore...) {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid glob %q", pat)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: starting fsnotify: %w", err)
	}

	w := &Watcher{
		base: watchTree{
			fsw:     fsw,
			root:    root,
			want:    cfg.Patterns,
			ignores: append(append([]string{}, alwaysIgnored...), cfg.Ignore...),
		},
		out:      writerOr(cfg.Stdout, os.Stdout),
		errOut:   writerOr(cfg.Stderr, os.Stderr),
		quiet:    cfg.Debounce,
		clear:    cfg.ClearScreen,
		onChange: cfg.OnChange,
	}
	if w.quiet <= 0 {
		w.quiet = fallbackDebounce
	}

	if err := w.base.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

// Close releases the fsnotify watcher. It is safe to call whether or not
// Run ever started; after Run, Close is a no-op since Run cleans up itself.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.base.fsw.Close()
}

// Run blocks until ctx ends, dispatching one OnChange call per debounced
// batch of matching events. It may be called once; it returns nil on
// context cancellation and an error when the watch breaks irrecoverably.
func (w *Watcher) Run(ctx context.Context) error {
	if w.started.Swap(true) {
		return errors.New("watch: Run called twice")
	}
	defer func() {
		if !w.closed.Swap(true) {
			if err := w.base.fsw.Close(); err != nil {
				fmt.Fprintf(w.errOut, "watch: closing fsnotify: %v\n", err)
			}
		}
	}()

	hits := make(chan string, hitBuffer)
	broken := make(chan error, 1)
	go w.base.collect(ctx, hits, broken, w.errOut)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-broken:
			return err
		case first := <-hits:
			batch, err := w.settle(ctx, first, hits, broken)
			if err != nil {
				return err
			}
			if batch == nil {
				return nil // context ended mid-batch
			}
			w.dispatch(ctx, batch)
		}
	}
}

// settle accumulates paths until the quiet window passes with no new
// event, restarting the window on each arrival. It returns (nil, nil) when
// the context ends first.
func (w *Watcher) settle(ctx context.Context, first string, hits <-chan string, broken <-chan error) ([]string, error) {
	batch := map[string]struct{}{first: {}}
	window := time.NewTimer(w.quiet)
	defer window.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case err := <-broken:
			return nil, err
		case path := <-hits:
			batch[path] = struct{}{}
			if !window.Stop() {
				<-window.C
			}
			window.Reset(w.quiet)
		case <-window.C:
			changed := make([]string, 0, len(batch))
			for p := range batch {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			return changed, nil
		}
	}
}

// dispatch runs the callback for one batch. It is synchronous: events
// arriving meanwhile queue in the hit channel and open the next batch.
func (w *Watcher) dispatch(ctx context.Context, changed []string) {
	if w.onChange == nil {
		return
	}
	if w.clear {
		fmt.Fprint(w.out, "\033[2J\033[H")
	}
	if err := w.onChange(ctx, changed); err != nil {
		fmt.Fprintf(w.errOut, "watch: on-change: %v\n", err)
	}
}

// collect drains fsnotify, forwarding the relative path of every matching
// event onto hits. Directory creations extend the watch; a fatal watcher
// error is reported on broken and ends the goroutine.
func (n *watchTree) collect(ctx context.Context, hits chan<- string, broken chan<- error, errOut io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-n.fsw.Events:
			if !ok {
				broken <- errors.New("watch: event stream closed")
				return
			}
			// A created directory grows the watch even when its own path
			// falls outside the match patterns.
			if evt.Has(fsnotify.Create) {
				n.extend(evt.Name)
			}
			rel, ok := n.classify(evt)
			if !ok {
				continue
			}
			select {
			case hits <- rel:
			case <-ctx.Done():
				return
			}

		case err, ok := <-n.fsw.Errors:
			if !ok {
				broken <- errors.New("watch: error stream closed")
				return
			}
			if watchExhausted(err) {
				broken <- fmt.Errorf("watch: watcher exhausted: %w", err)
				return
			}
			fmt.Fprintf(errOut, "watch: %v\n", err)
		}
	}
}

// classify turns an event into the relative path the callback should see,
// or reports that the event is filtered out.
func (n *watchTree) classify(evt fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(n.root, evt.Name)
	if err != nil {
		rel = evt.Name
	}
	rel = filepath.ToSlash(rel)

	if n.ignored(rel) {
		return "", false
	}
	if len(n.want) == 0 {
		return rel, true
	}
	for _, pat := range n.want {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return rel, true
		}
	}
	return "", false
}

func (n *watchTree) ignored(rel string) bool {
	for _, pat := range n.ignores {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// addTree registers dir and every non-ignored directory below it. Paths
// that disappear or refuse access mid-walk are skipped: directory churn
// during registration is normal.
func (n *watchTree) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(n.root, path)
		if relErr == nil && rel != "." && n.ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}

		if addErr := n.fsw.Add(path); addErr != nil {
			if watchExhausted(addErr) {
				return fmt.Errorf("watch: registering %s: %w", path, addErr)
			}
		}
		return nil
	})
}

// extend registers a newly created directory (and anything already inside
// it) so recursion keeps up with mkdir -p style bursts. Non-directories
// and failures are ignored; the create event itself was already reported.
func (n *watchTree) extend(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = n.addTree(path)
}
