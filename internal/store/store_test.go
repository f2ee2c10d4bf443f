package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/agentsync/internal/display"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

type fakeHistory struct {
	requests []string
	err      error
}

func (f *fakeHistory) RequestHistory(taskID string) error {
	f.requests = append(f.requests, taskID)
	return f.err
}

func newTestStore(h HistoryRequester) *Store {
	return New(display.NewNormalizer(logging.Discard()), h, nil, logging.Discard())
}

func userEnv(text string) model.Envelope {
	return model.MustEnvelope(model.TypeUserSendMessage, model.UserMessageData{Message: text})
}

func resultEnv(text string) model.Envelope {
	return model.MustEnvelope(model.TypeCompletionResult, model.CompletionResultData{Result: text})
}

func texts(msgs []model.DisplayMessage) []string {
	var out []string
	for _, m := range msgs {
		switch v := m.(type) {
		case *model.UserMessage:
			out = append(out, "user:"+v.Text)
		case *model.CompletionResultMessage:
			out = append(out, "result:"+v.Result)
		default:
			out = append(out, string(m.Kind()))
		}
	}
	return out
}

func TestHandleTaskHistory_ReplacesNotAppends(t *testing.T) {
	s := newTestStore(nil)
	p := []model.Envelope{userEnv("q1"), resultEnv("a1"), userEnv("q2")}
	q := []model.Envelope{userEnv("q1"), resultEnv("a1")}

	s.HandleTaskHistory("A", p)
	require.Len(t, s.Messages("A"), 3)

	s.HandleTaskHistory("A", q)
	assert.Len(t, s.Messages("A"), len(q))

	s.HandleTaskHistory("A", q)
	assert.Equal(t, []string{"user:q1", "result:a1"}, texts(s.Messages("A")))
}

func TestHandleTaskHistory_DropsStateOnlyEnvelopes(t *testing.T) {
	s := newTestStore(nil)
	s.HandleTaskHistory("A", []model.Envelope{
		userEnv("q"),
		model.MustEnvelope(model.TypeAck, model.AckData{}),
		{Type: "unregistered"},
	})
	assert.Equal(t, []string{"user:q"}, texts(s.Messages("A")))
}

func TestHandleTaskHistory_PreservesLoadingAndSubtasks(t *testing.T) {
	s := newTestStore(nil)
	s.EnsureTask("B", "A", "child")
	s.SetLoading("A", true)

	s.HandleTaskHistory("A", []model.Envelope{userEnv("q")})

	task, ok := s.Task("A")
	require.True(t, ok)
	assert.True(t, task.Loading)
	assert.Contains(t, task.Subtasks, "B")
}

func TestHandleSessionHistories_NoCrossContamination(t *testing.T) {
	s := newTestStore(nil)
	s.AppendDisplayMessage("Y", model.NewThinkMessage("stale", nil))

	s.HandleSessionHistories([]model.TaskHistoryData{
		{TaskID: "X", Messages: []model.Envelope{userEnv("x1"), resultEnv("x2")}},
		{TaskID: "Y", Messages: []model.Envelope{userEnv("y1")}},
	})

	if diff := cmp.Diff([]string{"user:x1", "result:x2"}, texts(s.Messages("X"))); diff != "" {
		t.Errorf("X messages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"user:y1"}, texts(s.Messages("Y"))); diff != "" {
		t.Errorf("Y messages mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateUserMessageStatus_MostRecentPendingOnly(t *testing.T) {
	s := newTestStore(nil)
	s.AppendDisplayMessage("A", model.NewUserMessage("hi", model.UserMessagePending, nil))
	s.AppendDisplayMessage("A", model.NewUserMessage("other", model.UserMessagePending, nil))
	s.AppendDisplayMessage("A", model.NewUserMessage("hi", model.UserMessagePending, nil))

	require.True(t, s.UpdateUserMessageStatus("A", "hi", model.UserMessageAcked))

	msgs := s.Messages("A")
	assert.Equal(t, model.UserMessagePending, msgs[0].(*model.UserMessage).Status)
	assert.Equal(t, model.UserMessagePending, msgs[1].(*model.UserMessage).Status)
	assert.Equal(t, model.UserMessageAcked, msgs[2].(*model.UserMessage).Status)

	// second ack for the same text reaches the older message
	require.True(t, s.UpdateUserMessageStatus("A", "hi", model.UserMessageAcked))
	assert.Equal(t, model.UserMessageAcked, s.Messages("A")[0].(*model.UserMessage).Status)

	assert.False(t, s.UpdateUserMessageStatus("A", "hi", model.UserMessageAcked))
	assert.False(t, s.UpdateUserMessageStatus("A", "missing", model.UserMessageAcked))
	assert.False(t, s.UpdateUserMessageStatus("nope", "hi", model.UserMessageAcked))
}

func TestAppendDisplayMessage_LazyCreateAndOrder(t *testing.T) {
	s := newTestStore(nil)
	s.AppendDisplayMessage("A", model.NewThinkMessage("1", nil))
	s.AppendDisplayMessage("A", model.NewErrorMessage("2", nil))
	s.AppendDisplayMessage("", model.NewErrorMessage("dropped", nil))

	assert.Equal(t, []string{"A"}, s.TaskIDs())
	msgs := s.Messages("A")
	require.Len(t, msgs, 2)
	assert.Equal(t, model.KindThink, msgs[0].Kind())
	assert.Equal(t, model.KindError, msgs[1].Kind())
}

func TestSetLoading_UnknownTaskIsNoop(t *testing.T) {
	s := newTestStore(nil)
	s.SetLoading("ghost", true)
	_, ok := s.Task("ghost")
	assert.False(t, ok)
	assert.False(t, s.Loading("ghost"))
}

func TestSetLoading_MirrorsIntoParentSummary(t *testing.T) {
	s := newTestStore(nil)
	s.EnsureTask("sub", "main", "worker")
	s.SetLoading("sub", true)

	subs := s.Subtasks("main")
	require.Len(t, subs, 1)
	assert.Equal(t, model.SubtaskSummary{ID: "sub", Name: "worker", Loading: true}, subs[0])

	s.SetLoading("sub", false)
	assert.False(t, s.Subtasks("main")[0].Loading)
}

func TestEnsureTask_ParentCreatedLazily(t *testing.T) {
	s := newTestStore(nil)
	s.EnsureTask("sub", "parent", "")

	parent, ok := s.Task("parent")
	require.True(t, ok)
	assert.Empty(t, parent.ParentID)

	sub, ok := s.Task("sub")
	require.True(t, ok)
	assert.Equal(t, "parent", sub.ParentID)
	assert.True(t, sub.IsSubtask())
}

func TestEnsureTask_SelfParentAndReparentIgnored(t *testing.T) {
	s := newTestStore(nil)
	s.EnsureTask("A", "A", "")
	a, _ := s.Task("A")
	assert.Empty(t, a.ParentID)

	s.EnsureTask("sub", "P1", "")
	s.EnsureTask("sub", "P2", "renamed")
	sub, _ := s.Task("sub")
	assert.Equal(t, "P1", sub.ParentID)
	assert.Equal(t, "renamed", s.Subtasks("P1")[0].Name)
	assert.Empty(t, s.Subtasks("P2"))
}

func TestSetMainTaskID_RequestsHistoryOncePerChange(t *testing.T) {
	h := &fakeHistory{}
	s := newTestStore(h)

	s.SetMainTaskID("A")
	assert.Empty(t, h.requests, "no request while disconnected")

	s.SetConnected(true)
	assert.Equal(t, []string{"A"}, h.requests, "connect requests the focused task")

	s.SetMainTaskID("A")
	assert.Equal(t, []string{"A"}, h.requests, "same id does not re-request")

	s.SetMainTaskID("B")
	s.SetMainTaskID("B")
	assert.Equal(t, []string{"A", "B"}, h.requests)

	s.SetConnected(false)
	s.SetConnected(true)
	assert.Equal(t, []string{"A", "B", "B"}, h.requests, "reconnect restores the focused task")

	assert.Equal(t, "B", s.MainTaskID())
	_, ok := s.Task("B")
	assert.True(t, ok, "main task created on first reference")
}

func TestSetMainTaskID_RequestErrorIsSwallowed(t *testing.T) {
	h := &fakeHistory{err: errors.New("send queue full")}
	s := newTestStore(h)
	s.SetConnected(true)
	s.SetMainTaskID("A")
	assert.Equal(t, "A", s.MainTaskID())
	assert.Equal(t, []string{"A"}, h.requests)
}

func TestReadsReturnCopies(t *testing.T) {
	s := newTestStore(nil)
	s.AppendDisplayMessage("A", model.NewUserMessage("hi", model.UserMessagePending, nil))

	msgs := s.Messages("A")
	msgs[0].(*model.UserMessage).Status = model.UserMessageAcked

	assert.Equal(t, model.UserMessagePending, s.Messages("A")[0].(*model.UserMessage).Status)
	assert.Nil(t, s.Messages("unknown"))
}
