// Package watcher ingests screenshots dropped into a local directory. New
// files are debounced, uploaded to the user bucket, and pushed through the
// ingestion pipeline at a bounded rate.
package watcher

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
)

const defaultDebounce = 400 * time.Millisecond

// Ingestor runs the ingestion pipeline for one screenshot.
type Ingestor interface {
	Ingest(ctx context.Context, source models.ObjectRef) (*models.IngestResponse, error)
}

// Watcher watches the drop directory and ingests matching files.
type Watcher struct {
	dir         string
	extensions  []string
	bucket      string
	store       objstore.Store
	ingestor    Ingestor
	limiter     *rate.Limiter
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// NewWatcher creates a watcher for cfg.Directory. Files are uploaded to
// bucket before ingestion; IngestPerSecond bounds pipeline pressure.
func NewWatcher(cfg *config.WatchConfig, store objstore.Store, ingestor Ingestor,
	bucket string, logger *zap.Logger) *Watcher {
	perSecond := cfg.IngestPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Watcher{
		dir:         cfg.Directory,
		extensions:  cfg.Extensions,
		bucket:      bucket,
		store:       store,
		ingestor:    ingestor,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if _, err := os.Stat(w.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(w.dir, 0755); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop directory",
		zap.String("dir", w.dir),
		zap.Strings("extensions", w.extensions),
	)
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		if w.matchExtension(path) {
			w.debounceIngest(ctx, path)
		}
	case ev.Op.Has(fsnotify.Remove):
		w.cancelDebounce(path)
	}
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// debounceIngest delays ingestion until the file has stopped changing, so
// a screenshot still being written is picked up once, complete.
func (w *Watcher) debounceIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
	w.debounceMap[path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// ingestFile uploads the file to the user bucket and runs the pipeline.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("drop file unreadable", zap.String("path", path), zap.Error(err))
		return
	}

	ref := models.ObjectRef{Bucket: w.bucket, Key: filepath.Base(path)}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := w.store.Put(ctx, ref, data, contentType); err != nil {
		w.logger.Error("drop file upload failed", zap.String("path", path), zap.Error(err))
		return
	}

	resp, err := w.ingestor.Ingest(ctx, ref)
	if err != nil {
		w.logger.Error("drop file ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("drop file ingested",
		zap.String("path", path),
		zap.String("record_id", resp.RecordID),
	)
}

// SyncExistingFiles ingests files already present in the drop directory.
// Call after Start so screenshots dropped while the service was down are
// not missed.
func (w *Watcher) SyncExistingFiles(ctx context.Context) {
	filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.matchExtension(path) {
			w.ingestFile(ctx, path)
		}
		return nil
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
