package fileindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher invalidates an Index when indexed files change on disk.
type Watcher struct {
	idx     *Index
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	done    chan struct{}
}

// Watch registers every non-excluded directory under the index root and
// invalidates idx on write, create, remove and rename of indexed files.
// The watcher stops when ctx is done or Close is called.
func Watch(ctx context.Context, idx *Index, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{idx: idx, watcher: fw, logger: logger, done: make(chan struct{})}
	if err := w.addTree(idx.root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	go w.run(ctx)
	return w, nil
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.idx.root {
			rel, relErr := filepath.Rel(w.idx.root, p)
			if relErr == nil && w.idx.excluded(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			rel, err := filepath.Rel(w.idx.root, event.Name)
			if err != nil || w.idx.excluded(filepath.ToSlash(rel)) {
				return
			}
			// New directories must be registered explicitly.
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn(ctx, "watching new directory failed", zap.String("path", event.Name), zap.Error(err))
			}
			w.idx.Invalidate()
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.idx.Indexed(event.Name) {
		return
	}
	w.logger.Debug(ctx, "indexed file changed",
		zap.String("path", event.Name),
		zap.String("op", event.Op.String()))
	w.idx.Invalidate()
}
