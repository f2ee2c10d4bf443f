// Package workflow tracks per-task workflow contexts on top of the phase predicates in model.
// The predicates stay pure; this package is the caller that composes them.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

var (
	ErrUnknownTask         = errors.New("no workflow context for task")
	ErrAlreadyActive       = errors.New("workflow already active for task")
	ErrInvalidTransition   = errors.New("invalid phase transition")
	ErrMissingPrerequisite = errors.New("missing prerequisite document")
	ErrDocumentOutOfOrder  = errors.New("document prerequisites not met")
)

// Tracker owns the active TaskContexts. Contexts reaching complete are retired.
type Tracker struct {
	mu      sync.RWMutex
	active  map[string]*model.TaskContext
	retired map[string]*model.TaskContext
	bus     events.Publisher
	logger  *logging.Logger
}

func NewTracker(bus events.Publisher, logger *logging.Logger) *Tracker {
	return &Tracker{
		active:  make(map[string]*model.TaskContext),
		retired: make(map[string]*model.TaskContext),
		bus:     bus,
		logger:  logger.With("workflow"),
	}
}

func (t *Tracker) publish(typ events.EventType, taskID string, data map[string]any) {
	if t.bus != nil {
		t.bus.Publish(typ, taskID, data)
	}
}

// Begin creates the context for taskID and enters analyze.
func (t *Tracker) Begin(taskID, name, docsPath string) (*model.TaskContext, error) {
	t.mu.Lock()
	if _, ok := t.active[taskID]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, taskID)
	}
	ctx := model.NewTaskContext(taskID, name, docsPath)
	ctx.CurrentPhase = model.PhaseAnalyze
	t.active[taskID] = ctx
	delete(t.retired, taskID)
	snapshot := ctx.Clone()
	t.mu.Unlock()

	t.logger.Infof("phase_transition task=%s from=%s to=%s", taskID, model.PhaseIdle, model.PhaseAnalyze)
	t.publish(events.EventPhaseTransition, taskID, map[string]any{
		"from": string(model.PhaseIdle),
		"to":   string(model.PhaseAnalyze),
	})
	return snapshot, nil
}

// Advance moves taskID to phase to. The transition must be in the table and every prerequisite
// document of to must already be present.
func (t *Tracker) Advance(taskID string, to model.WorkflowPhase) error {
	t.mu.Lock()
	ctx, ok := t.active[taskID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	from := ctx.CurrentPhase
	if !model.IsValidTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	if missing := ctx.MissingPrerequisites(to); len(missing) > 0 {
		t.mu.Unlock()
		return fmt.Errorf("%w: entering %s needs %v", ErrMissingPrerequisite, to, missing)
	}
	ctx.CurrentPhase = to
	if model.IsTerminalPhase(to) {
		delete(t.active, taskID)
		t.retired[taskID] = ctx
	}
	t.mu.Unlock()

	t.logger.Infof("phase_transition task=%s from=%s to=%s", taskID, from, to)
	t.publish(events.EventPhaseTransition, taskID, map[string]any{"from": string(from), "to": string(to)})
	return nil
}

// SetDocument records the artifact for kind. A kind is accepted only once the prerequisites of
// the phase producing it are present.
func (t *Tracker) SetDocument(taskID string, kind model.DocumentKind, path string) error {
	phase, ok := model.PhaseForDocument(kind)
	if !ok {
		return fmt.Errorf("unknown document kind %q", kind)
	}

	t.mu.Lock()
	ctx, ok := t.active[taskID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if missing := ctx.MissingPrerequisites(phase); len(missing) > 0 {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s needs %v", ErrDocumentOutOfOrder, kind, missing)
	}
	previous, existed := ctx.Documents[kind]
	ctx.Documents[kind] = path
	t.mu.Unlock()

	if existed && previous == path {
		return nil
	}
	t.logger.Infof("document_registered task=%s kind=%s path=%s", taskID, kind, path)
	t.publish(events.EventDocumentRegistered, taskID, map[string]any{"kind": string(kind), "path": path})
	return nil
}

// Context returns a copy of the active or retired context.
func (t *Tracker) Context(taskID string) (*model.TaskContext, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ctx, ok := t.active[taskID]; ok {
		return ctx.Clone(), true
	}
	if ctx, ok := t.retired[taskID]; ok {
		return ctx.Clone(), true
	}
	return nil, false
}

func (t *Tracker) IsActive(taskID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.active[taskID]
	return ok
}

// ActiveTaskIDs returns the ids of non-retired contexts, sorted.
func (t *Tracker) ActiveTaskIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
