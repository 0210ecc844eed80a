package main

import (
	"log/slog"
	"sync"
)

// tasks tracks the background goroutines of serve. Resources registered with
// closeAfter are released only once every goroutine has returned, so a
// poller still finishing its last cycle never sees a closed connection.
type tasks struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	closers []closer
	logger  *slog.Logger
}

type closer struct {
	name string
	fn   func() error
}

func newTasks(logger *slog.Logger) *tasks {
	return &tasks{logger: logger}
}

func (t *tasks) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *tasks) closeAfter(name string, fn func() error) {
	t.mu.Lock()
	t.closers = append(t.closers, closer{name: name, fn: fn})
	t.mu.Unlock()
}

// Wait blocks until all goroutines return, then runs the closers in reverse
// registration order.
func (t *tasks) Wait() {
	t.wg.Wait()

	t.mu.Lock()
	closers := t.closers
	t.closers = nil
	t.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			t.logger.Warn("close failed", "resource", closers[i].name, "error", err)
		}
	}
}
