// Package watch observes the checkpoints directory: blackboard writes for
// live inspection and the stop signal file that ends a run between units.
package watch

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StopFileName is the signal file that requests a run to stop.
const StopFileName = "stop"

// Watcher monitors a checkpoints directory.
type Watcher struct {
	dir   string
	board string

	mu         sync.RWMutex
	stopSignal bool

	watcher *fsnotify.Watcher
	changes chan string
	done    chan struct{}
	once    sync.Once
}

// New watches dir for changes to the blackboard file named board and for the
// stop signal. The directory is created if needed. When fsnotify is not
// available the watcher still answers ShouldStop by polling the file.
func New(dir, board string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		board:   board,
		changes: make(chan string, 16),
		done:    make(chan struct{}),
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[watch] fsnotify unavailable, polling only: %v", err)
		return w, nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		log.Printf("[watch] cannot watch %s, polling only: %v", dir, err)
		return w, nil
	}
	w.watcher = fw

	go w.loop()

	return w, nil
}

// loop dispatches fsnotify events until Close.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			switch filepath.Base(event.Name) {
			case StopFileName:
				// Events can arrive after ClearStop; only a file that still exists counts.
				w.mu.Lock()
				if _, err := os.Stat(event.Name); err == nil {
					w.stopSignal = true
				}
				w.mu.Unlock()
			case w.board:
				// Atomic writes land as a rename onto the board file.
				select {
				case w.changes <- event.Name:
				default:
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] %v", err)
		}
	}
}

// Changes delivers the board path each time it is rewritten. Bursts are
// coalesced: a slow reader sees at least one event per burst.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// ShouldStop returns true once a stop signal has been seen.
func (w *Watcher) ShouldStop() bool {
	// The file is checked directly in case the watcher missed the event.
	if _, err := os.Stat(w.stopPath()); err == nil {
		w.mu.Lock()
		w.stopSignal = true
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopSignal
}

// RequestStop creates the stop signal file.
func (w *Watcher) RequestStop() error {
	return RequestStop(w.dir)
}

// ClearStop removes the stop signal file and resets the signal state.
func (w *Watcher) ClearStop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopSignal = false
	os.Remove(w.stopPath())
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Close shuts down the watcher.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) stopPath() string {
	return filepath.Join(w.dir, StopFileName)
}

// RequestStop writes the stop signal file into dir. It is used by a second
// process to stop a running pipeline.
func RequestStop(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, StopFileName)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}
