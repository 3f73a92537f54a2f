// 工作流文档文件变更监听器。
//
// 轮询文件内容摘要，内容真正变化时（防抖后）通知回调，
// 单纯的 touch 或重复写入相同内容不会触发重载。
package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrWatcherRunning is returned by Start on a running watcher.
var ErrWatcherRunning = errors.New("watcher already running")

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 表示文件内容已变化
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file change event
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
	// Data 是变化后的文件内容，删除时为空
	Data []byte `json:"-"`
}

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval sets how often the files are checked
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// FileWatcher polls files and reports content changes
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string
	debounceDelay time.Duration
	pollInterval  time.Duration

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	callbacks []func(FileEvent)
	logger    *zap.Logger

	// path -> sha256，仅由轮询协程访问
	digests map[string][sha256.Size]byte
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		digests:       make(map[string][sha256.Size]byte),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "file_watcher"))

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
			}
			w.logger.Warn("watched file does not exist, will watch for creation",
				zap.String("path", abs))
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// OnChange registers a callback for file change events
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. The current contents are the baseline and do
// not produce events.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrWatcherRunning
	}

	for _, path := range w.paths {
		if data, err := os.ReadFile(path); err == nil {
			w.digests[path] = sha256.Sum256(data)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.run(ctx, w.done)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops the watcher and waits for pending callbacks to return.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("file watcher stopped")
	return nil
}

// run 轮询并在同一协程内完成防抖分发，pending 不会被并发访问
func (w *FileWatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	pending := make(map[string]FileEvent)
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range w.checkFiles() {
				pending[ev.Path] = ev
				fire = time.After(w.debounceDelay)
			}
		case <-fire:
			fire = nil
			w.dispatch(pending)
			pending = make(map[string]FileEvent)
		}
	}
}

func (w *FileWatcher) checkFiles() []FileEvent {
	var events []FileEvent
	for _, path := range w.Paths() {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				if _, tracked := w.digests[path]; tracked {
					delete(w.digests, path)
					events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: time.Now()})
				}
				continue
			}
			w.logger.Warn("failed to read watched file", zap.String("path", path), zap.Error(err))
			continue
		}

		sum := sha256.Sum256(data)
		prev, tracked := w.digests[path]
		switch {
		case !tracked:
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: time.Now(), Data: data})
		case prev != sum:
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: time.Now(), Data: data})
		default:
			continue
		}
		w.digests[path] = sum
	}
	return events
}

func (w *FileWatcher) dispatch(pending map[string]FileEvent) {
	w.mu.RLock()
	callbacks := append(([]func(FileEvent))(nil), w.callbacks...)
	w.mu.RUnlock()

	for _, ev := range pending {
		w.logger.Debug("dispatching file event",
			zap.String("path", ev.Path),
			zap.String("op", ev.Op.String()))
		for _, cb := range callbacks {
			w.safeCall(cb, ev)
		}
	}
}

func (w *FileWatcher) safeCall(cb func(FileEvent), ev FileEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("file watcher callback panicked",
				zap.String("path", ev.Path), zap.Any("panic", r))
		}
	}()
	cb(ev)
}

// Paths returns the list of watched paths
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.paths...)
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
