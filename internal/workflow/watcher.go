package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

// documentOrder is the order a directory is scanned in, so a later kind is never rejected just
// because an earlier one was registered in the same pass.
var documentOrder = []model.DocumentKind{model.DocRequirements, model.DocDesign, model.DocTaskList}

// DocWatcher registers workflow documents as they appear in a task's docs directory.
type DocWatcher struct {
	tracker  *Tracker
	cfg      model.WorkflowConfig
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu   sync.Mutex
	dirs map[string]string // dir → task id
}

func NewDocWatcher(tracker *Tracker, cfg model.WorkflowConfig, logger *logging.Logger) (*DocWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	debounce := time.Duration(cfg.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &DocWatcher{
		tracker:  tracker,
		cfg:      cfg,
		logger:   logger.With("docwatch"),
		watcher:  w,
		debounce: debounce,
		dirs:     make(map[string]string),
	}, nil
}

// Watch starts watching dir for taskID and registers documents already present.
func (d *DocWatcher) Watch(taskID, dir string) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ensure docs dir %s: %w", dir, err)
	}
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	d.mu.Lock()
	d.dirs[dir] = taskID
	d.mu.Unlock()

	d.Scan(taskID, dir)
	return nil
}

// Unwatch stops watching dir.
func (d *DocWatcher) Unwatch(dir string) {
	dir = filepath.Clean(dir)
	d.mu.Lock()
	delete(d.dirs, dir)
	d.mu.Unlock()
	_ = d.watcher.Remove(dir)
}

// Scan registers every configured document present in dir. Returns the number registered.
func (d *DocWatcher) Scan(taskID, dir string) int {
	n := 0
	for _, kind := range documentOrder {
		name := d.cfg.DocumentFile(kind)
		if name == "" {
			continue
		}
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		err := d.tracker.SetDocument(taskID, kind, path)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrDocumentOutOfOrder):
			d.logger.Debugf("document deferred task=%s kind=%s reason=%v", taskID, kind, err)
		case errors.Is(err, ErrUnknownTask):
			return n
		default:
			d.logger.Warnf("document rejected task=%s kind=%s error=%v", taskID, kind, err)
		}
	}
	return n
}

// Run processes filesystem events until ctx is done. Bursts of writes to a directory are
// coalesced into one rescan.
func (d *DocWatcher) Run(ctx context.Context) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			dir := filepath.Dir(event.Name)
			d.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			pending[dir] = true
			timer.Reset(d.debounce)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Errorf("fsnotify error=%v", err)
		case <-timer.C:
			for dir := range pending {
				d.mu.Lock()
				taskID, ok := d.dirs[dir]
				d.mu.Unlock()
				if ok {
					d.Scan(taskID, dir)
				}
				delete(pending, dir)
			}
		}
	}
}

func (d *DocWatcher) Close() error {
	return d.watcher.Close()
}
