// Package events carries store and workflow change notifications to observers, and journals the
// envelope stream for debugging.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventTaskUpdated is published when a task is created or its metadata changes.
	EventTaskUpdated EventType = "task_updated"
	// EventMainTaskChanged is published when the focused main task changes.
	EventMainTaskChanged EventType = "main_task_changed"
	// EventLoadingChanged is published when a task's in-flight flag flips.
	EventLoadingChanged EventType = "loading_changed"
	// EventMessageAppended is published after a display message is appended.
	EventMessageAppended EventType = "message_appended"
	// EventMessageUpdated is published after a display message status changes in place.
	EventMessageUpdated EventType = "message_updated"
	// EventHistoryReplaced is published after a task's display sequence was replaced.
	EventHistoryReplaced EventType = "history_replaced"
	// EventPhaseTransition is published when a task's workflow phase changes.
	EventPhaseTransition EventType = "phase_transition"
	// EventDocumentRegistered is published when a workflow document is recorded.
	EventDocumentRegistered EventType = "document_registered"
)

// Event represents a state change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	TaskID    string
	Data      map[string]any
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Publisher is the publishing half of Bus.
type Publisher interface {
	Publish(eventType EventType, taskID string, data map[string]any)
}

type subscription struct {
	ch    chan Event
	types map[EventType]bool // nil means every type
}

// Bus is a non-blocking event bus.
// Events are delivered asynchronously, in publish order, via one buffered channel per subscriber.
// If a subscriber's channel is full, the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	bufferSize  int
	closed      bool
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers fn for the given event types, or for every type when none are given.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber, types ...EventType) func() {
	sub := &subscription{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return func() {}
	}
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	go func() {
		for event := range sub.ch {
			func() {
				defer func() {
					// a panicking subscriber must not stop delivery to it
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.subscribers {
			if s == sub {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(sub.ch)
				break
			}
		}
	}
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(eventType EventType, taskID string, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Data:      data,
	}

	for _, sub := range b.subscribers {
		if sub.types != nil && !sub.types[eventType] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close closes all subscriber channels. Later subscriptions are inert.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
	b.closed = true
}
