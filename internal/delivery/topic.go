package delivery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"livecast/internal/logging"
)

// TopicWatcher follows the current topic file and records every distinct
// topic it holds, in order.
type TopicWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	path    string
	history []string
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewTopicWatcher creates a watcher for path. The file need not exist yet.
func NewTopicWatcher(path string) (*TopicWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TopicWatcher{
		watcher: w,
		path:    filepath.Clean(path),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start records the current topic and begins watching. The parent
// directory is watched so the file can be created or replaced.
func (tw *TopicWatcher) Start(ctx context.Context) error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = true
	tw.mu.Unlock()

	dir := filepath.Dir(tw.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := tw.watcher.Add(dir); err != nil {
		return err
	}
	tw.read()

	go tw.run(ctx)
	return nil
}

// History returns the topics seen so far.
func (tw *TopicWatcher) History() []string {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return append([]string(nil), tw.history...)
}

// Stop ends watching and returns the topic history.
func (tw *TopicWatcher) Stop() []string {
	tw.mu.Lock()
	running := tw.running
	tw.running = false
	tw.mu.Unlock()

	if running {
		close(tw.stopCh)
		<-tw.doneCh
	}
	if err := tw.watcher.Close(); err != nil {
		logging.DeliveryWarn("TopicWatcher: error closing watcher: %v", err)
	}
	return tw.History()
}

func (tw *TopicWatcher) run(ctx context.Context) {
	defer close(tw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.stopCh:
			return
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != tw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				tw.read()
			}
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logging.DeliveryWarn("TopicWatcher error: %v", err)
		}
	}
}

// read records the file's topic when it is non-empty and new.
func (tw *TopicWatcher) read() {
	data, err := os.ReadFile(tw.path)
	if err != nil {
		return
	}
	topic := strings.TrimSpace(string(data))
	if topic == "" {
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()
	if n := len(tw.history); n > 0 && tw.history[n-1] == topic {
		return
	}
	tw.history = append(tw.history, topic)
	logging.DeliveryDebug("Topic changed: %s", topic)
}
