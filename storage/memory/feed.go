package memory

import (
	"context"
	"sync"

	"bombily/pkg/models"
)

const listenerBuffer = 1024

type listener struct {
	ch   chan models.OrderEvent
	done chan struct{}
}

// feed fans every write out to the registered listeners, in write order per
// listener.
type feed struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
	stop      chan struct{}
	stopOnce  sync.Once
}

func newFeed() *feed {
	return &feed{listeners: make(map[*listener]struct{}), stop: make(chan struct{})}
}

func (f *feed) Listen(ctx context.Context, handle func(models.OrderEvent)) error {
	l := &listener{ch: make(chan models.OrderEvent, listenerBuffer), done: make(chan struct{})}

	f.mu.Lock()
	f.listeners[l] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.listeners, l)
		f.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stop:
			return nil
		case ev := <-l.ch:
			handle(ev)
		}
	}
}

func (f *feed) publish(ev models.OrderEvent) {
	f.mu.Lock()
	targets := make([]*listener, 0, len(f.listeners))
	for l := range f.listeners {
		targets = append(targets, l)
	}
	f.mu.Unlock()

	for _, l := range targets {
		select {
		case l.ch <- ev:
		case <-l.done:
		case <-f.stop:
			return
		}
	}
}

func (f *feed) close() {
	f.stopOnce.Do(func() { close(f.stop) })
}
