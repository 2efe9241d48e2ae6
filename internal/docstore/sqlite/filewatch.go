package sqlite

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// fileWatcher watches the database directory for writes to the database,
// its WAL and shared-memory files, so changes committed by other processes
// reach local watches.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	base     string
	debounce time.Duration
	onChange func()
	logger   *zap.Logger
	done     chan struct{}
	wg       sync.WaitGroup
}

func newFileWatcher(dbPath string, debounce time.Duration, onChange func(), logger *zap.Logger) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch database directory %s: %w", dir, err)
	}

	fw := &fileWatcher{
		watcher:  watcher,
		base:     filepath.Base(dbPath),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	fw.wg.Add(1)
	go fw.processEvents()
	return fw, nil
}

// stop closes the watcher and waits for the event loop to exit.
func (fw *fileWatcher) stop() error {
	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// processEvents coalesces relevant events into one onChange call per
// debounce window.
func (fw *fileWatcher) processEvents() {
	defer fw.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
				fire = timer.C
			}

		case <-fire:
			timer, fire = nil, nil
			fw.onChange()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether event touches one of the database files.
// Chmod events are ignored.
func (fw *fileWatcher) relevant(event fsnotify.Event) bool {
	if !strings.HasPrefix(filepath.Base(event.Name), fw.base) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
