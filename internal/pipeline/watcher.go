package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/logger"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher ingests files under watched directory trees as they are created or
// written. Bursts of events on one path are collapsed into a single ingest.
type Watcher struct {
	ingestor *Ingestor
	fsw      *fsnotify.Watcher
	debounce time.Duration
	log      *zap.SugaredLogger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	onReport func(*FileReport)
	roots    []string
}

func NewWatcher(in *Ingestor, debounce time.Duration, log *zap.SugaredLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		ingestor: in,
		fsw:      fsw,
		debounce: debounce,
		log:      logger.OrNop(log),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// OnReport registers fn to receive every file report produced by the watcher.
func (w *Watcher) OnReport(fn func(*FileReport)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReport = fn
}

// Add watches dir and every directory below it.
func (w *Watcher) Add(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "watch %s", dir), ErrNotDirectory)
	}
	if !info.IsDir() {
		return errors.Wrapf(ErrNotDirectory, "watch %s", dir)
	}
	w.mu.Lock()
	w.roots = append(w.roots, dir)
	w.mu.Unlock()
	return w.addTree(dir, dir)
}

func (w *Watcher) addTree(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warnw("cannot walk", logger.FieldPath, path, logger.FieldError, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil && path != root && w.ingestor.matcher.Match(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return errors.Wrapf(err, "watch %s", path)
		}
		w.log.Debugw("watching", logger.FieldPath, path)
		return nil
	})
}

func (w *Watcher) rootOf(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if rel, err := filepath.Rel(r, path); err == nil && filepath.IsLocal(rel) {
			return r
		}
	}
	return filepath.Dir(path)
}

// Run handles events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.handle(ctx, event.Name, event.Has(fsnotify.Create))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string, created bool) {
	root := w.rootOf(path)
	if rel, err := filepath.Rel(root, path); err == nil && w.ingestor.matcher.Match(rel) {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if !created {
			return
		}
		if err := w.addTree(root, path); err != nil {
			w.log.Warnw("cannot watch new directory", logger.FieldPath, path, logger.FieldError, err)
		}
		w.scheduleTree(ctx, path)
		return
	}
	w.schedule(ctx, path)
}

// scheduleTree queues every file under dir. Entries the walk cannot read are
// reported right away.
func (w *Watcher) scheduleTree(ctx context.Context, dir string) {
	paths, failures := w.ingestor.walk(dir)
	w.mu.Lock()
	fn := w.onReport
	w.mu.Unlock()
	if fn != nil {
		for _, fr := range failures {
			fn(fr)
		}
	}
	for _, p := range paths {
		w.schedule(ctx, p)
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		fn := w.onReport
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		fr := w.ingestor.IngestFile(ctx, path)
		if fn != nil {
			fn(fr)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
