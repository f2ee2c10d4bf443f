// Package transport carries protocol envelopes over a persistent duplex socket.
package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/msageha/agentsync/internal/model"
)

// DefaultMaxFrameBytes caps a single frame payload.
const DefaultMaxFrameBytes = 10 * 1024 * 1024

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrEmptyType     = errors.New("envelope has no type")
	ErrUnregistered  = errors.New("envelope type not registered")
	ErrClosed        = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// WriteFrame writes a length-prefixed JSON frame.
// Format: [4-byte BigEndian length][JSON payload]
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	length := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	// io.Copy retries short writes
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame into v, rejecting payloads larger than maxBytes.
// A maxBytes of zero or less means DefaultMaxFrameBytes.
func ReadFrame(r io.Reader, v any, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read frame length: %w", err)
	}

	if int64(length) > int64(maxBytes) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}

// Validator accepts envelopes whose type has been registered.
type Validator struct {
	known map[model.MessageType]bool
}

func NewValidator(types ...model.MessageType) *Validator {
	v := &Validator{known: make(map[model.MessageType]bool, len(types))}
	v.Register(types...)
	return v
}

// InboundValidator accepts every type a client expects from the agent backend.
func InboundValidator() *Validator {
	return NewValidator(
		model.TypeAck, model.TypeSessionHistories, model.TypeConversationOver,
		model.TypeInterrupt, model.TypeAlert, model.TypeTaskHistory, model.TypeSubTaskHistory,
		model.TypeTaskCreated, model.TypeConnected, model.TypeError, model.TypeThink,
		model.TypeCompletionResult, model.TypeToolInvocation, model.TypeUserSendMessage,
	)
}

// OutboundValidator accepts the user-initiated types a backend expects from a client.
func OutboundValidator() *Validator {
	return NewValidator(
		model.TypeUserSendMessage, model.TypeCreateTask, model.TypeCallSubTask,
		model.TypeResume, model.TypeLoadHistory,
	)
}

func (v *Validator) Register(types ...model.MessageType) {
	for _, t := range types {
		v.known[t] = true
	}
}

func (v *Validator) Validate(env model.Envelope) error {
	if env.Type == "" {
		return ErrEmptyType
	}
	if !v.known[env.Type] {
		return fmt.Errorf("%w: %q", ErrUnregistered, env.Type)
	}
	return nil
}

// Types returns the registered types, sorted.
func (v *Validator) Types() []model.MessageType {
	out := make([]model.MessageType, 0, len(v.known))
	for t := range v.known {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
