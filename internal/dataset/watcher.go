package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/normanking/veriflow/internal/logging"
)

// ReloadFunc receives the file name and new contents after a change.
type ReloadFunc func(name string, raw []byte)

// Watcher reloads a dataset file whenever it is written or replaced.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange ReloadFunc
	log      *logging.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending *time.Timer
	done    chan struct{}
	closed  bool
}

// NewWatcher watches path's directory so editor rename-and-replace saves are seen.
func NewWatcher(path string, onChange ReloadFunc, log *logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve dataset path: %w", err)
	}
	if log == nil {
		log = logging.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		watcher:  fw,
		path:     abs,
		onChange: onChange,
		log:      log,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go w.watchLoop()

	log.Info("dataset", "Watching dataset file", map[string]interface{}{"path": abs})
	return w, nil
}

// Path returns the absolute path being watched
func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("dataset", "Watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// schedule coalesces bursts of write events into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("dataset", "Failed to read dataset file", map[string]interface{}{"path": w.path, "error": err.Error()})
		return
	}
	w.log.Debug("dataset", "Dataset file changed", map[string]interface{}{"path": w.path, "bytes": len(raw)})
	if w.onChange != nil {
		w.onChange(filepath.Base(w.path), raw)
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}
