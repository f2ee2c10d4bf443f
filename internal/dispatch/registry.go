// Package dispatch classifies incoming envelopes. Handlers run in a fixed order against the store;
// the first handler that consumes an envelope stops the chain, otherwise the envelope is normalized
// and appended to a task's display sequence.
package dispatch

import (
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

// Port is the only view of the store a handler gets.
type Port interface {
	MainTaskID() string
	SetMainTaskID(id string)
	SetLoading(taskID string, loading bool)
	EnsureTask(id, parentID, name string)
	AppendDisplayMessage(taskID string, msg model.DisplayMessage)
	UpdateUserMessageStatus(taskID, matchText string, status model.UserMessageStatus) bool
	HandleTaskHistory(taskID string, messages []model.Envelope)
	HandleSessionHistories(histories []model.TaskHistoryData)
}

// Normalizer produces the display variant of an unconsumed envelope.
type Normalizer interface {
	Normalize(env model.Envelope) (model.DisplayMessage, bool)
}

// HandleFunc reports whether env was fully consumed.
type HandleFunc func(env model.Envelope, port Port) bool

// Handler is a classifier for a fixed set of message types. No types means every type.
type Handler struct {
	Name   string
	Types  []model.MessageType
	Handle HandleFunc
}

// Matches is a pure predicate over the discriminant.
func (h Handler) Matches(t model.MessageType) bool {
	if len(h.Types) == 0 {
		return true
	}
	for _, typ := range h.Types {
		if typ == t {
			return true
		}
	}
	return false
}

// Result describes what Dispatch did with an envelope.
type Result struct {
	ConsumedBy string // handler name, empty when forwarded
	Displayed  bool
	TaskID     string // task the display message was appended to
}

type Registry struct {
	handlers   []Handler
	port       Port
	normalizer Normalizer
	logger     *logging.Logger
}

// NewRegistry builds a registry running handlers in the given order.
func NewRegistry(port Port, normalizer Normalizer, logger *logging.Logger, handlers ...Handler) *Registry {
	return &Registry{
		handlers:   handlers,
		port:       port,
		normalizer: normalizer,
		logger:     logger.With("dispatch"),
	}
}

// Handlers returns the handler names in run order.
func (r *Registry) Handlers() []string {
	names := make([]string, len(r.handlers))
	for i, h := range r.handlers {
		names[i] = h.Name
	}
	return names
}

// Dispatch runs env through the chain and, if nothing consumed it, the display pipeline.
func (r *Registry) Dispatch(env model.Envelope) Result {
	for _, h := range r.handlers {
		if !h.Matches(env.Type) {
			continue
		}
		if h.Handle(env, r.port) {
			r.logger.Debugf("envelope type=%s consumed_by=%s", env.Type, h.Name)
			return Result{ConsumedBy: h.Name}
		}
	}

	msg, ok := r.normalizer.Normalize(env)
	if !ok {
		return Result{}
	}
	taskID := effectiveTaskID(env.TaskID(), r.port)
	if taskID == "" {
		r.logger.Warnf("drop envelope type=%s reason=no_task", env.Type)
		return Result{}
	}
	r.port.AppendDisplayMessage(taskID, msg)
	r.logger.Debugf("envelope type=%s displayed task=%s", env.Type, taskID)
	return Result{Displayed: true, TaskID: taskID}
}

// effectiveTaskID prefers the id named by the envelope over the focused task.
func effectiveTaskID(explicit string, port Port) string {
	if explicit != "" {
		return explicit
	}
	return port.MainTaskID()
}
