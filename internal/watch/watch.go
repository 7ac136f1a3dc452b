// Package watch reingests descriptors when their files change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/ingest"
	"github.com/gremid/faust-app/internal/logging"
)

// Sink receives the settled changes.
type Sink interface {
	Ingest(ctx context.Context, uri string) ingest.Outcome
	Remove(ctx context.Context, uri string) ingest.Outcome
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long changes are collected before they are applied.
	Debounce time.Duration
	// Extensions lists the file suffixes to react to.
	Extensions []string
}

// Watcher watches a descriptor directory tree. Changes are collected and
// applied once per debounce interval: a path that still exists is
// ingested, a vanished one removed.
type Watcher struct {
	xml        *xmlstore.Store
	dir        string
	sink       Sink
	fsw        *fsnotify.Watcher
	debounce   time.Duration
	extensions []string

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
}

// New returns a watcher over prefix, a directory relative to the storage
// root. The directory must exist.
func New(xs *xmlstore.Store, prefix string, sink Sink, opts Options) (*Watcher, error) {
	dir := filepath.Join(xs.Root(), filepath.FromSlash(strings.Trim(prefix, "/")))
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFound("xml directory", prefix)
		}
		return nil, apperrors.NewIO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewValidation("prefix", dir+" is not a directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.NewIO("watch", dir, err)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".xml", ".xz"}
	}
	w := &Watcher{
		xml:        xs,
		dir:        dir,
		sink:       sink,
		fsw:        fsw,
		debounce:   opts.Debounce,
		extensions: opts.Extensions,
		pending:    make(map[string]fsnotify.Op),
	}
	if err := w.addRecursive(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes changes until ctx is done. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	logging.InfoContext(ctx, "watching descriptors", "dir", w.dir, "debounce", w.debounce.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.ErrorContext(ctx, "watcher error", "error", err.Error())
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.matches(ev.Name) {
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.addRecursive(ev.Name); err != nil {
					logging.Warn("failed to watch directory", "path", ev.Name, "error", err.Error())
				}
			}
		}
		return
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}

	w.pendingMu.Lock()
	w.pending[ev.Name] |= ev.Op
	w.pendingMu.Unlock()
	logging.Debug("descriptor change detected", "path", ev.Name, "op", ev.Op.String())
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		if ctx.Err() != nil {
			return
		}
		uri, err := w.xml.URI(p)
		if err != nil {
			logging.Warn("cannot map path to storage uri", "path", p, "error", err.Error())
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			w.sink.Remove(ctx, uri)
			continue
		}
		w.sink.Ingest(ctx, uri)
	}
}

func (w *Watcher) matches(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !xmlstore.IsXMLSource(name) {
		return false
	}
	lower := strings.ToLower(name)
	for _, ext := range w.extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return apperrors.NewIO("watch", p, err)
		}
		logging.Debug("watching directory", "path", p)
		return nil
	})
}
