package notify

import (
	"errors"
	"sync"

	"github.com/msageha/agentsync/internal/logging"
)

// DefaultQueueSize is the Async queue length used when none is given.
const DefaultQueueSize = 32

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

// Async hands notifications to a single worker goroutine so Notify never waits on the
// delivery. Failures of the wrapped notifier are logged.
type Async struct {
	next   Notifier
	queue  chan Notification
	done   chan struct{}
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Notifier, size int, logger *logging.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		next:   next,
		queue:  make(chan Notification, size),
		done:   make(chan struct{}),
		logger: logger.With("notify"),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.queue {
		if err := a.next.Notify(n); err != nil {
			a.logger.Warnf("notification failed task=%s error=%v", n.TaskID, err)
		}
	}
}

// Notify enqueues n. It returns ErrQueueFull instead of waiting when the worker is behind.
func (a *Async) Notify(n Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return nil
}
