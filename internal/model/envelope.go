// Package model defines the protocol envelopes, task state, display variants and workflow phases
// shared by the agentsync packages.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MessageType is the discriminant of an Envelope.
type MessageType string

// Inbound message types.
const (
	TypeAck              MessageType = "ack"
	TypeSessionHistories MessageType = "sessionHistories"
	TypeConversationOver MessageType = "conversationOver"
	TypeInterrupt        MessageType = "interrupt"
	TypeAlert            MessageType = "alert"
	TypeTaskHistory      MessageType = "taskHistory"
	TypeSubTaskHistory   MessageType = "subTaskHistory"
	TypeTaskCreated      MessageType = "taskCreated"
	TypeConnected        MessageType = "connected"
	TypeError            MessageType = "error"
	TypeThink            MessageType = "think"
	TypeCompletionResult MessageType = "completionResult"
	TypeToolInvocation   MessageType = "toolInvocation"
)

// Outbound (user-initiated) message types. TypeUserSendMessage also appears inbound inside
// histories and as the target of an ack.
const (
	TypeUserSendMessage MessageType = "userSendMessage"
	TypeCreateTask      MessageType = "createTask"
	TypeCallSubTask     MessageType = "callSubTask"
	TypeResume          MessageType = "resume"
	TypeLoadHistory     MessageType = "loadHistory"
)

// Envelope is one wire-level protocol message.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(t MessageType, data any) (Envelope, error) {
	env := Envelope{Type: t}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", t, err)
	}
	env.Data = raw
	return env, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to marshal.
func MustEnvelope(t MessageType, data any) Envelope {
	env, err := NewEnvelope(t, data)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope data into v. An empty payload decodes as an empty object.
func (e Envelope) Decode(v any) error {
	data := e.Data
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}

// TaskID returns the explicit taskId carried in the payload, or "" when absent.
func (e Envelope) TaskID() string {
	var ref struct {
		TaskID string `json:"taskId"`
	}
	if err := e.Decode(&ref); err != nil {
		return ""
	}
	return ref.TaskID
}

// Timestamp accepts either an RFC3339 string or unix milliseconds on the wire.
// Unparseable values decode to the zero Timestamp, which is treated as unknown.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ts.Time = t
		}
		return nil
	}
	if ms, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		ts.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	if f, err := strconv.ParseFloat(string(b), 64); err == nil {
		ts.Time = time.UnixMilli(int64(f)).UTC()
	}
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Format(time.RFC3339Nano))
}

// Ptr returns nil for an unknown time.
func (ts *Timestamp) Ptr() *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// At builds a Timestamp for outbound payloads and tests.
func At(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}
