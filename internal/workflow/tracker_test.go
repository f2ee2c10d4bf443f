package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(typ events.EventType, taskID string, data map[string]any) {
	r.events = append(r.events, events.Event{Type: typ, TaskID: taskID, Data: data})
}

func (r *recordingPublisher) transitions() []string {
	var out []string
	for _, e := range r.events {
		if e.Type == events.EventPhaseTransition {
			out = append(out, e.Data["to"].(string))
		}
	}
	return out
}

func TestTracker_FullWalk(t *testing.T) {
	pub := &recordingPublisher{}
	tr := NewTracker(pub, logging.Discard())

	ctx, err := tr.Begin("A", "build cli", "/docs/A")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseAnalyze, ctx.CurrentPhase)

	require.NoError(t, tr.SetDocument("A", model.DocRequirements, "/docs/A/requirements.md"))
	require.NoError(t, tr.Advance("A", model.PhaseDesign))
	require.NoError(t, tr.SetDocument("A", model.DocDesign, "/docs/A/design.md"))
	require.NoError(t, tr.Advance("A", model.PhaseBreakdown))
	require.NoError(t, tr.SetDocument("A", model.DocTaskList, "/docs/A/tasks.md"))
	require.NoError(t, tr.Advance("A", model.PhaseExecute))
	require.NoError(t, tr.Advance("A", model.PhaseComplete))

	assert.False(t, tr.IsActive("A"), "complete retires the context")
	got, ok := tr.Context("A")
	require.True(t, ok)
	assert.Equal(t, model.PhaseComplete, got.CurrentPhase)
	assert.Len(t, got.Documents, 3)

	assert.ErrorIs(t, tr.Advance("A", model.PhaseIdle), ErrUnknownTask)
	assert.Equal(t, []string{"analyze", "design", "breakdown", "execute", "complete"}, pub.transitions())
}

func TestTracker_RejectsSkippedPhase(t *testing.T) {
	tr := NewTracker(nil, logging.Discard())
	_, err := tr.Begin("A", "", "")
	require.NoError(t, err)

	err = tr.Advance("A", model.PhaseBreakdown)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ctx, _ := tr.Context("A")
	assert.Equal(t, model.PhaseAnalyze, ctx.CurrentPhase)
}

func TestTracker_RejectsMissingPrerequisite(t *testing.T) {
	tr := NewTracker(nil, logging.Discard())
	_, err := tr.Begin("A", "", "")
	require.NoError(t, err)

	err = tr.Advance("A", model.PhaseDesign)
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	assert.Contains(t, err.Error(), "requirements")
}

func TestTracker_DocumentOrder(t *testing.T) {
	tr := NewTracker(nil, logging.Discard())
	_, err := tr.Begin("A", "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, tr.SetDocument("A", model.DocDesign, "d.md"), ErrDocumentOutOfOrder)
	assert.ErrorIs(t, tr.SetDocument("A", model.DocTaskList, "t.md"), ErrDocumentOutOfOrder)
	require.NoError(t, tr.SetDocument("A", model.DocRequirements, "r.md"))
	require.NoError(t, tr.SetDocument("A", model.DocDesign, "d.md"))

	// at most one artifact per kind
	require.NoError(t, tr.SetDocument("A", model.DocDesign, "d2.md"))
	ctx, _ := tr.Context("A")
	assert.Equal(t, "d2.md", ctx.Documents[model.DocDesign])
	assert.Len(t, ctx.Documents, 2)

	assert.Error(t, tr.SetDocument("A", "slides", "s.md"))
	assert.ErrorIs(t, tr.SetDocument("B", model.DocRequirements, "r.md"), ErrUnknownTask)
}

func TestTracker_BeginTwice(t *testing.T) {
	tr := NewTracker(nil, logging.Discard())
	_, err := tr.Begin("A", "", "")
	require.NoError(t, err)
	_, err = tr.Begin("A", "", "")
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, []string{"A"}, tr.ActiveTaskIDs())
}

func TestTracker_ContextIsCopy(t *testing.T) {
	tr := NewTracker(nil, logging.Discard())
	ctx, err := tr.Begin("A", "", "")
	require.NoError(t, err)
	ctx.Documents[model.DocDesign] = "sneaky.md"
	ctx.CurrentPhase = model.PhaseExecute

	got, _ := tr.Context("A")
	assert.Equal(t, model.PhaseAnalyze, got.CurrentPhase)
	assert.Empty(t, got.Documents)
}
