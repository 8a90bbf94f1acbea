package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the layered configuration when any of its files change
// and hands the result to a callback. Invalid edits are logged and the
// previous configuration stays in effect.
type Watcher struct {
	watcher  *fsnotify.Watcher
	startDir string
	debounce time.Duration
	logger   *logrus.Entry
	onReload func(*Config)

	mu      sync.Mutex
	files   map[string]bool
	pending *time.Timer
}

// NewWatcher watches the directories of every layer that applies to startDir.
// Directories are watched rather than files so editor rename-on-save is seen;
// symlinked files also get their target directory watched.
func NewWatcher(startDir string, debounce time.Duration, logger *logrus.Entry, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	w := &Watcher{
		watcher:  fw,
		startDir: startDir,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
		files:    make(map[string]bool),
	}

	watchedDirs := make(map[string]bool)
	for _, layer := range FindLayers(startDir) {
		w.files[layer.Path] = true
		dirs := []string{filepath.Dir(layer.Path)}
		if target, err := filepath.EvalSymlinks(layer.Path); err == nil && target != layer.Path {
			w.files[target] = true
			dirs = append(dirs, filepath.Dir(target))
		}
		for _, dir := range dirs {
			if watchedDirs[dir] {
				continue
			}
			if err := fw.Add(dir); err != nil {
				logger.WithError(err).Warnf("Failed to watch config dir %s", dir)
				continue
			}
			watchedDirs[dir] = true
		}
	}

	if len(watchedDirs) == 0 {
		fw.Close()
		return nil, os.ErrNotExist
	}
	return w, nil
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.isConfigFile(event.Name) {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.mu.Lock()
			if w.pending != nil {
				w.pending.Stop()
			}
			w.mu.Unlock()
			return
		}
	}
}

func (w *Watcher) isConfigFile(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[name]
}

// schedule coalesces bursts of writes into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.startDir)
	if err != nil {
		w.logger.WithError(err).Warn("Config reload failed, keeping previous configuration")
		return
	}
	w.logger.Info("Configuration reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
