// Package view holds presentation-only state that is not authoritative task data.
package view

import (
	"sort"
	"sync"

	"github.com/msageha/agentsync/internal/model"
)

// KeyFor derives the stable expansion key of a message from its kind and update time.
func KeyFor(msg model.DisplayMessage) string {
	return model.MessageKey(msg.Kind(), msg.UpdateTime(), contentOf(msg))
}

func contentOf(msg model.DisplayMessage) string {
	switch m := msg.(type) {
	case *model.UserMessage:
		return m.Text
	case *model.ThinkMessage:
		return m.Content
	case *model.CompletionResultMessage:
		return m.Result
	case *model.ToolInvocationMessage:
		return m.Tool + "\x00" + m.Input
	case *model.ErrorMessage:
		return m.Message
	case *model.AlertMessage:
		return m.Message
	}
	return ""
}

// Expanded is the set of expanded collapsible sections.
type Expanded struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewExpanded() *Expanded {
	return &Expanded{ids: make(map[string]struct{})}
}

// Toggle flips id and returns whether it is now expanded.
func (e *Expanded) Toggle(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ids[id]; ok {
		delete(e.ids, id)
		return false
	}
	e.ids[id] = struct{}{}
	return true
}

func (e *Expanded) Expand(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids[id] = struct{}{}
}

func (e *Expanded) Collapse(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.ids, id)
}

func (e *Expanded) IsExpanded(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.ids[id]
	return ok
}

// IDs returns the expanded ids sorted.
func (e *Expanded) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.ids))
	for id := range e.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
