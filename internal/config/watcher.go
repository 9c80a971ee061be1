package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"stanlsp/internal/debounce"
)

// DefaultReloadDelay collapses the burst of events editors produce when
// saving a file.
const DefaultReloadDelay = 100 * time.Millisecond

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithReloadDelay sets the debounce delay for change notifications.
func WithReloadDelay(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.delay = d
	}
}

// WithOnError sets the callback invoked on watch errors.
func WithOnError(fn func(error)) WatchOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// Watcher reports changes to one configuration file. The file does not need
// to exist yet: its directory is watched so creation is noticed too.
type Watcher struct {
	path     string
	delay    time.Duration
	onChange func()
	onError  func(error)

	fsw       *fsnotify.Watcher
	debouncer *debounce.Debouncer
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
}

// Watch starts watching path and calls onChange after it is written,
// created, renamed or removed. Watching ends when ctx is done or Stop is
// called.
func Watch(ctx context.Context, path string, onChange func(), opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		delay:    DefaultReloadDelay,
		onChange: onChange,
		onError:  func(error) {},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = debounce.New(w.delay)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory containing the file (more reliable for atomic writes)
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
	return w, nil
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.done
		w.fsw.Close()
		w.debouncer.Dispose()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	target := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.debouncer.Debounce(w.onChange)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}
