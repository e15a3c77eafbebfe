package filewatch

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Changes streams names of files modified (= written, created, removed, or renamed)
// among the watched paths, until ctx is done.
//
// Watching a directory reports changes of files in it.
// The returned channel is closed when ctx is done or the watcher stops.
func Changes(ctx context.Context, paths ...string) (<-chan fsnotify.Event, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
	}

	ch := make(chan fsnotify.Event)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

// OnModify calls f each time one of paths is modified, until ctx is done.
//
// f is called sequentially in a single goroutine.
func OnModify(ctx context.Context, f func(fsnotify.Event), paths ...string) error {
	ch, err := Changes(ctx, paths...)
	if err != nil {
		return err
	}
	go func() {
		for ev := range ch {
			f(ev)
		}
	}()
	return nil
}
