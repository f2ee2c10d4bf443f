package model

// AckData reports that a previously sent user action reached the backend.
type AckData struct {
	TaskID        string   `json:"taskId,omitempty"`
	TargetMessage Envelope `json:"targetMessage"`
}

// TaskHistoryData carries the full history of one task.
type TaskHistoryData struct {
	TaskID   string     `json:"taskId"`
	Messages []Envelope `json:"messages"`
}

// SubTaskHistoryData carries the full history of one subtask of TaskID.
type SubTaskHistoryData struct {
	TaskID    string     `json:"taskId"`
	SubTaskID string     `json:"subTaskId"`
	Name      string     `json:"name,omitempty"`
	Messages  []Envelope `json:"messages"`
}

// SessionHistoriesData carries several independent task histories at once.
type SessionHistoriesData struct {
	Histories []TaskHistoryData `json:"histories"`
}

// TaskCreatedData announces a task, optionally a subtask of ParentID.
type TaskCreatedData struct {
	TaskID     string     `json:"taskId"`
	ParentID   string     `json:"parentId,omitempty"`
	Name       string     `json:"name,omitempty"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

// StateChangeData is the payload of conversationOver and interrupt.
type StateChangeData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type AlertData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Level      string     `json:"level,omitempty"`
	Message    string     `json:"message"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type UserMessageData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Message    string     `json:"message"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type ErrorData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Message    string     `json:"message"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type ThinkData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Content    string     `json:"content"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type CompletionResultData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Result     string     `json:"result"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type ToolInvocationData struct {
	TaskID     string     `json:"taskId,omitempty"`
	Tool       string     `json:"tool"`
	Input      string     `json:"input,omitempty"`
	Output     string     `json:"output,omitempty"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type ConnectedData struct {
	SessionID  string     `json:"sessionId,omitempty"`
	UpdateTime *Timestamp `json:"updateTime,omitempty"`
}

type CreateTaskData struct {
	Message string `json:"message"`
}

type CallSubTaskData struct {
	TaskID    string `json:"taskId"`
	SubTaskID string `json:"subTaskId"`
	Message   string `json:"message"`
}

type ResumeData struct {
	TaskID string `json:"taskId,omitempty"`
}

type LoadHistoryData struct {
	TaskID string `json:"taskId"`
}
