// Package store holds the task/subtask state of a session. Every mutation goes through a named
// operation so the task invariants are enforced in one place. Operations never fail: unknown task
// ids are created lazily by mutating operations and ignored by lookups.
//
// Mutations are expected from a single goroutine (the dispatch loop); reads are safe from any
// goroutine and return copies.
package store

import (
	"sync"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

// HistoryRequester asks the backend for a task's history. Implementations must not block.
type HistoryRequester interface {
	RequestHistory(taskID string) error
}

// Normalizer converts history envelopes into display messages.
type Normalizer interface {
	NormalizeAll(envs []model.Envelope) []model.DisplayMessage
}

type Store struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	order []string

	mainTaskID   string
	connected    bool
	requestedFor string

	normalizer Normalizer
	history    HistoryRequester
	bus        events.Publisher
	logger     *logging.Logger
}

// New creates an empty store. history and bus may be nil.
func New(normalizer Normalizer, history HistoryRequester, bus events.Publisher, logger *logging.Logger) *Store {
	return &Store{
		tasks:      make(map[string]*model.Task),
		normalizer: normalizer,
		history:    history,
		bus:        bus,
		logger:     logger.With("store"),
	}
}

// SetHistoryRequester wires the transport after construction.
func (s *Store) SetHistoryRequester(h HistoryRequester) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h
}

func (s *Store) publish(t events.EventType, taskID string, data map[string]any) {
	if s.bus != nil {
		s.bus.Publish(t, taskID, data)
	}
}

// ensureLocked returns the task, creating it if needed. Caller holds mu.
func (s *Store) ensureLocked(id string) (*model.Task, bool) {
	if t, ok := s.tasks[id]; ok {
		return t, false
	}
	t := &model.Task{ID: id, Subtasks: make(map[string]model.SubtaskSummary)}
	s.tasks[id] = t
	s.order = append(s.order, id)
	return t, true
}

// SetMainTaskID focuses the session on id, creating the task on first reference. While connected,
// a history load is requested at most once per change of id.
func (s *Store) SetMainTaskID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	if s.mainTaskID == id {
		s.mu.Unlock()
		return
	}
	_, created := s.ensureLocked(id)
	s.mainTaskID = id
	request := s.connected && s.requestedFor != id && s.history != nil
	if request {
		s.requestedFor = id
	}
	history := s.history
	s.mu.Unlock()

	if created {
		s.publish(events.EventTaskUpdated, id, map[string]any{"created": true})
	}
	s.publish(events.EventMainTaskChanged, id, nil)
	if request {
		s.requestHistory(history, id)
	}
}

func (s *Store) requestHistory(h HistoryRequester, id string) {
	if err := h.RequestHistory(id); err != nil {
		s.logger.Warnf("history request failed task=%s error=%v", id, err)
		return
	}
	s.logger.Debugf("history requested task=%s", id)
}

// SetConnected records connection state. Becoming connected re-requests the main task history,
// since anything sent while disconnected was lost.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	s.requestedFor = ""
	main := s.mainTaskID
	request := connected && main != "" && s.history != nil
	if request {
		s.requestedFor = main
	}
	history := s.history
	s.mu.Unlock()

	if request {
		s.requestHistory(history, main)
	}
}

// SetLoading toggles the in-flight flag. Unknown tasks are ignored. A subtask's flag is mirrored
// into its parent's summary.
func (s *Store) SetLoading(taskID string, loading bool) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok || t.Loading == loading {
		s.mu.Unlock()
		if !ok {
			s.logger.Debugf("set loading ignored task=%s reason=unknown_task", taskID)
		}
		return
	}
	t.Loading = loading
	if parent, ok := s.tasks[t.ParentID]; ok && t.ParentID != "" {
		summary := parent.Subtasks[taskID]
		summary.Loading = loading
		parent.Subtasks[taskID] = summary
	}
	s.mu.Unlock()

	s.publish(events.EventLoadingChanged, taskID, map[string]any{"loading": loading})
}

// AppendDisplayMessage appends msg to the task's display sequence, creating the task if needed.
func (s *Store) AppendDisplayMessage(taskID string, msg model.DisplayMessage) {
	if taskID == "" || msg == nil {
		return
	}
	s.mu.Lock()
	t, created := s.ensureLocked(taskID)
	t.Messages = append(t.Messages, msg)
	index := len(t.Messages) - 1
	s.mu.Unlock()

	if created {
		s.publish(events.EventTaskUpdated, taskID, map[string]any{"created": true})
	}
	s.publish(events.EventMessageAppended, taskID, map[string]any{"index": index, "kind": string(msg.Kind())})
}

// UpdateUserMessageStatus updates the most recent pending user message whose text equals
// matchText. Returns false when nothing matched.
func (s *Store) UpdateUserMessageStatus(taskID, matchText string, status model.UserMessageStatus) bool {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	index := -1
	for i := len(t.Messages) - 1; i >= 0; i-- {
		um, ok := t.Messages[i].(*model.UserMessage)
		if ok && um.Status == model.UserMessagePending && um.Text == matchText {
			um.Status = status
			index = i
			break
		}
	}
	s.mu.Unlock()

	if index < 0 {
		return false
	}
	s.publish(events.EventMessageUpdated, taskID, map[string]any{"index": index, "status": string(status)})
	return true
}

// HandleTaskHistory replaces the task's display sequence with the normalized history, so
// redelivering the same history never duplicates messages.
func (s *Store) HandleTaskHistory(taskID string, messages []model.Envelope) {
	if taskID == "" {
		return
	}
	normalized := s.normalizer.NormalizeAll(messages)

	s.mu.Lock()
	t, created := s.ensureLocked(taskID)
	t.Messages = normalized
	s.mu.Unlock()

	if created {
		s.publish(events.EventTaskUpdated, taskID, map[string]any{"created": true})
	}
	s.publish(events.EventHistoryReplaced, taskID, map[string]any{"count": len(normalized)})
}

// HandleSessionHistories applies HandleTaskHistory to every entry.
func (s *Store) HandleSessionHistories(histories []model.TaskHistoryData) {
	for _, h := range histories {
		s.HandleTaskHistory(h.TaskID, h.Messages)
	}
}

// EnsureTask creates the task if needed and links it under parentID when given. The parent is
// created lazily so every subtask references an existing task.
func (s *Store) EnsureTask(id, parentID, name string) {
	if id == "" {
		return
	}
	if parentID == id {
		parentID = ""
	}
	s.mu.Lock()
	t, created := s.ensureLocked(id)
	changed := created
	if name != "" && t.Name != name {
		t.Name = name
		changed = true
	}
	var parentCreated bool
	if parentID != "" && t.ParentID != parentID {
		if t.ParentID != "" {
			s.logger.Warnf("subtask reparent ignored task=%s parent=%s new_parent=%s", id, t.ParentID, parentID)
		} else {
			_, parentCreated = s.ensureLocked(parentID)
			t.ParentID = parentID
			changed = true
		}
	}
	if parent, ok := s.tasks[t.ParentID]; ok && t.ParentID != "" {
		parent.Subtasks[id] = model.SubtaskSummary{ID: id, Name: t.Name, Loading: t.Loading}
	}
	linkedTo := t.ParentID
	s.mu.Unlock()

	if parentCreated {
		s.publish(events.EventTaskUpdated, parentID, map[string]any{"created": true})
	}
	if changed {
		s.publish(events.EventTaskUpdated, id, map[string]any{"created": created, "parent_id": linkedTo})
	}
}

// MainTaskID returns the focused task, or "" before one is known.
func (s *Store) MainTaskID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mainTaskID
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Task returns a copy of the task.
func (s *Store) Task(id string) (*model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// TaskIDs returns task ids in creation order.
func (s *Store) TaskIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Messages returns a copy of the task's display sequence; nil for unknown tasks.
func (s *Store) Messages(taskID string) []model.DisplayMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	out := make([]model.DisplayMessage, len(t.Messages))
	for i, m := range t.Messages {
		out[i] = model.CloneDisplayMessage(m)
	}
	return out
}

func (s *Store) Loading(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	return ok && t.Loading
}

// Subtasks returns the summaries of parentID's subtasks in creation order.
func (s *Store) Subtasks(parentID string) []model.SubtaskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, ok := s.tasks[parentID]
	if !ok {
		return nil
	}
	var out []model.SubtaskSummary
	for _, id := range s.order {
		if summary, ok := parent.Subtasks[id]; ok {
			out = append(out, summary)
		}
	}
	return out
}
