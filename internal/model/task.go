package model

// Task is one main task or subtask with its display sequence.
type Task struct {
	ID       string
	ParentID string // empty for the main/root task
	Name     string
	Loading  bool
	Messages []DisplayMessage
	Subtasks map[string]SubtaskSummary
}

// SubtaskSummary is what a parent task knows about one of its subtasks.
type SubtaskSummary struct {
	ID      string
	Name    string
	Loading bool
}

// IsSubtask reports whether the task was spawned under a parent.
func (t *Task) IsSubtask() bool {
	return t.ParentID != ""
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := &Task{
		ID:       t.ID,
		ParentID: t.ParentID,
		Name:     t.Name,
		Loading:  t.Loading,
		Messages: make([]DisplayMessage, len(t.Messages)),
		Subtasks: make(map[string]SubtaskSummary, len(t.Subtasks)),
	}
	for i, m := range t.Messages {
		c.Messages[i] = CloneDisplayMessage(m)
	}
	for id, s := range t.Subtasks {
		c.Subtasks[id] = s
	}
	return c
}
