package screentime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// writer persists session snapshots on a single goroutine.
// Pending snapshots coalesce to the newest one, so a stale state can never
// be written after a newer state for the same session.
type writer struct {
	id     string
	store  domain.SessionStore
	logger *zap.Logger

	mu      sync.Mutex
	pending *domain.SessionState
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newWriter(id string, store domain.SessionStore, logger *zap.Logger) *writer {
	w := &writer{
		id:     id,
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// submit queues state for writing without blocking.
func (w *writer) submit(state domain.SessionState) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending = &state
	select {
	case w.wake <- struct{}{}:
	default:
	}
	w.mu.Unlock()
}

// close flushes the last pending snapshot and stops the goroutine.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.wake)
	w.mu.Unlock()

	<-w.done
}

func (w *writer) run() {
	defer close(w.done)
	for range w.wake {
		w.flush()
	}
	w.flush()
}

func (w *writer) flush() {
	w.mu.Lock()
	state := w.pending
	w.pending = nil
	w.mu.Unlock()

	if state == nil {
		return
	}
	if err := w.store.SaveSession(w.id, *state); err != nil {
		w.logger.Warn("failed to persist screen time session",
			zap.String("session", w.id),
			zap.Error(err))
	}
}
