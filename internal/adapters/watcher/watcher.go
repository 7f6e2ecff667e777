// Package watcher submits a detection job for every audio file that lands in
// an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/pkg/logger"
	"github.com/okian/barkwatch/pkg/metrics"
)

// Submitter accepts detection jobs.
type Submitter interface {
	Submit(ctx context.Context, req model.Job) (job model.Job, duplicate bool, err error)
}

// Watcher monitors a directory tree and submits new audio files. Each file
// path doubles as the idempotency key so rewrites are not processed twice.
type Watcher struct {
	dir        string
	submitter  Submitter
	debounce   time.Duration
	extensions map[string]bool
	logger     logger.Logger

	fw      *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]*time.Timer
	started bool

	ctx      context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, submitter Submitter, opts ...Option) (*Watcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrEmptyDir
	}
	if submitter == nil {
		return nil, ErrNoSubmitter
	}
	w := &Watcher{
		dir:       filepath.Clean(dir),
		submitter: submitter,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		stop:      make(chan struct{}),
	}
	WithExtensions(DefaultExtensions...)(w)

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("watcher")
	}
	return w, nil
}

// Start adds the directory tree to the watch list and processes events until
// Stop is called or ctx is done. Submissions use ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch dir %s: not a directory", w.dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fw = fw
	if err := w.addRecursive(w.dir); err != nil {
		_ = fw.Close()
		return err
	}

	w.ctx = ctx
	w.started = true
	w.wg.Add(1)
	go w.eventLoop(ctx)

	w.logger.Info(ctx, "watching inbox", logger.String("dir", w.dir))
	return nil
}

// Stop halts event processing and cancels pending submissions. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)

		w.mu.Lock()
		for name, t := range w.pending {
			t.Stop()
			delete(w.pending, name)
		}
		fw := w.fw
		w.mu.Unlock()

		if fw != nil {
			_ = fw.Close()
		}
		w.wg.Wait()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			metrics.RecordError("watcher", "fsnotify")
			w.logger.Warn(ctx, "watch error", logger.Error(err))
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") ||
		strings.HasSuffix(base, ".part") {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn(w.ctx, "watch new directory", logger.String("dir", event.Name), logger.Error(err))
			}
			w.mu.Unlock()
			return
		}
	}

	if !w.extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	// Restart the quiet period on every write.
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stop:
		return
	default:
	}
	if t, ok := w.pending[event.Name]; ok {
		t.Stop()
	}
	name := event.Name
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()
		w.submit(name)
	})
}

func (w *Watcher) submit(path string) {
	ctx := w.ctx
	select {
	case <-w.stop:
		return
	case <-ctx.Done():
		return
	default:
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	job, duplicate, err := w.submitter.Submit(ctx, model.Job{Source: path, IdempotencyKey: path})
	if err != nil {
		if errors.Is(err, model.ErrQueueFull) {
			w.logger.Warn(ctx, "queue full, file skipped", logger.String("path", path))
		} else {
			w.logger.Error(ctx, "submit failed", logger.String("path", path), logger.Error(err))
		}
		metrics.RecordError("watcher", "submit")
		return
	}
	if duplicate {
		w.logger.Debug(ctx, "file already submitted", logger.String("path", path), logger.String("job_id", job.ID))
		return
	}
	metrics.RecordWatcherSubmission()
	w.logger.Info(ctx, "file submitted", logger.String("path", path), logger.String("job_id", job.ID))
}
