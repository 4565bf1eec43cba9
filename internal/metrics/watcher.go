package metrics

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches one native session log and coalesces write bursts into
// single triggers. The trigger channel has capacity one: a trigger arriving
// while the consumer is mid-pass is absorbed by the pending slot, and any
// further ones are dropped; the next pass catches up from persisted state.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration

	triggers chan struct{}
	done     chan struct{}
	closeOne sync.Once
}

// NewWatcher starts watching the directory containing path. The directory
// is watched rather than the file itself so rename-style rewrites (Gemini
// replaces logs.json wholesale) keep producing events.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		fsw:      fsw,
		path:     path,
		debounce: debounce,
		triggers: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Triggers delivers one signal per quiescent write burst
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

func (w *Watcher) loop() {
	// Debounce timer, reset on every write so a burst of rapid flushes
	// produces exactly one trigger after the burst ends.
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, w.fire)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors degrade to polling; the periodic ticker in the
			// orchestrator still drives collection.
		}
	}
}

func (w *Watcher) fire() {
	select {
	case w.triggers <- struct{}{}:
	default:
		// A trigger is already pending; the coming pass covers this burst.
	}
}

// Close stops the watcher and its event loop
func (w *Watcher) Close() error {
	var err error
	w.closeOne.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}
