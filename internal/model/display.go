package model

import "time"

// DisplayKind selects the renderer for a DisplayMessage.
type DisplayKind string

const (
	KindUserMessage      DisplayKind = "user-message"
	KindError            DisplayKind = "error"
	KindInterrupt        DisplayKind = "interrupt"
	KindThink            DisplayKind = "think"
	KindCompletionResult DisplayKind = "completion-result"
	KindToolInvocation   DisplayKind = "tool-invocation"
	KindConnected        DisplayKind = "connected"
	KindAlert            DisplayKind = "alert"
)

// UserMessageStatus tracks delivery of a user-authored message.
type UserMessageStatus string

const (
	UserMessagePending UserMessageStatus = "pending"
	UserMessageAcked   UserMessageStatus = "acked"
)

// DisplayMessage is the closed set of renderer-ready variants. Only types in this package
// implement it.
type DisplayMessage interface {
	Kind() DisplayKind
	// UpdateTime is nil when the backend did not report a time.
	UpdateTime() *time.Time
	displayMessage()
}

type base struct {
	Time *time.Time `json:"updateTime,omitempty"`
}

func (b base) UpdateTime() *time.Time { return b.Time }
func (base) displayMessage() {}

type UserMessage struct {
	base
	Text   string            `json:"text"`
	Status UserMessageStatus `json:"status"`
}

func (UserMessage) Kind() DisplayKind { return KindUserMessage }

type ErrorMessage struct {
	base
	Message string `json:"message"`
}

func (ErrorMessage) Kind() DisplayKind { return KindError }

type InterruptMessage struct {
	base
	Reason string `json:"reason,omitempty"`
}

func (InterruptMessage) Kind() DisplayKind { return KindInterrupt }

type ThinkMessage struct {
	base
	Content string `json:"content"`
}

func (ThinkMessage) Kind() DisplayKind { return KindThink }

type CompletionResultMessage struct {
	base
	Result string `json:"result"`
}

func (CompletionResultMessage) Kind() DisplayKind { return KindCompletionResult }

type ToolInvocationMessage struct {
	base
	Tool   string `json:"tool"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

func (ToolInvocationMessage) Kind() DisplayKind { return KindToolInvocation }

type ConnectedMessage struct {
	base
	SessionID string `json:"sessionId,omitempty"`
}

func (ConnectedMessage) Kind() DisplayKind { return KindConnected }

type AlertMessage struct {
	base
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

func (AlertMessage) Kind() DisplayKind { return KindAlert }

// Constructors keep the unexported base out of callers' hands.

func NewUserMessage(text string, status UserMessageStatus, at *time.Time) *UserMessage {
	return &UserMessage{base: base{Time: at}, Text: text, Status: status}
}

func NewErrorMessage(msg string, at *time.Time) *ErrorMessage {
	return &ErrorMessage{base: base{Time: at}, Message: msg}
}

func NewInterruptMessage(reason string, at *time.Time) *InterruptMessage {
	return &InterruptMessage{base: base{Time: at}, Reason: reason}
}

func NewThinkMessage(content string, at *time.Time) *ThinkMessage {
	return &ThinkMessage{base: base{Time: at}, Content: content}
}

func NewCompletionResultMessage(result string, at *time.Time) *CompletionResultMessage {
	return &CompletionResultMessage{base: base{Time: at}, Result: result}
}

func NewToolInvocationMessage(tool, input, output string, at *time.Time) *ToolInvocationMessage {
	return &ToolInvocationMessage{base: base{Time: at}, Tool: tool, Input: input, Output: output}
}

func NewConnectedMessage(sessionID string, at *time.Time) *ConnectedMessage {
	return &ConnectedMessage{base: base{Time: at}, SessionID: sessionID}
}

func NewAlertMessage(level, msg string, at *time.Time) *AlertMessage {
	return &AlertMessage{base: base{Time: at}, Level: level, Message: msg}
}

// CloneDisplayMessage returns an independent copy so snapshots cannot alias store state.
func CloneDisplayMessage(m DisplayMessage) DisplayMessage {
	switch v := m.(type) {
	case *UserMessage:
		c := *v
		return &c
	case *ErrorMessage:
		c := *v
		return &c
	case *InterruptMessage:
		c := *v
		return &c
	case *ThinkMessage:
		c := *v
		return &c
	case *CompletionResultMessage:
		c := *v
		return &c
	case *ToolInvocationMessage:
		c := *v
		return &c
	case *ConnectedMessage:
		c := *v
		return &c
	case *AlertMessage:
		c := *v
		return &c
	default:
		return m
	}
}
