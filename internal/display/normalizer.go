// Package display converts unconsumed envelopes into renderer-ready display messages.
package display

import (
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

type convertFunc func(env model.Envelope) (model.DisplayMessage, error)

// converters holds exactly one variant per displayable message type. Types missing here are
// state-only or unknown and are dropped.
var converters = map[model.MessageType]convertFunc{
	model.TypeUserSendMessage: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.UserMessageData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		// Anything the backend sends back has been received by it.
		return model.NewUserMessage(d.Message, model.UserMessageAcked, d.UpdateTime.Ptr()), nil
	},
	model.TypeError: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.ErrorData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewErrorMessage(d.Message, d.UpdateTime.Ptr()), nil
	},
	model.TypeInterrupt: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.StateChangeData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewInterruptMessage(d.Reason, d.UpdateTime.Ptr()), nil
	},
	model.TypeThink: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.ThinkData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewThinkMessage(d.Content, d.UpdateTime.Ptr()), nil
	},
	model.TypeCompletionResult: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.CompletionResultData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewCompletionResultMessage(d.Result, d.UpdateTime.Ptr()), nil
	},
	model.TypeToolInvocation: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.ToolInvocationData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewToolInvocationMessage(d.Tool, d.Input, d.Output, d.UpdateTime.Ptr()), nil
	},
	model.TypeConnected: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.ConnectedData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewConnectedMessage(d.SessionID, d.UpdateTime.Ptr()), nil
	},
	model.TypeAlert: func(env model.Envelope) (model.DisplayMessage, error) {
		var d model.AlertData
		if err := env.Decode(&d); err != nil {
			return nil, err
		}
		return model.NewAlertMessage(d.Level, d.Message, d.UpdateTime.Ptr()), nil
	},
}

// stateOnly types are handled entirely by the dispatch handlers and never rendered.
var stateOnly = map[model.MessageType]bool{
	model.TypeAck:              true,
	model.TypeSessionHistories: true,
	model.TypeConversationOver: true,
	model.TypeTaskHistory:      true,
	model.TypeSubTaskHistory:   true,
	model.TypeTaskCreated:      true,
}

// Displayable reports whether t has a display variant.
func Displayable(t model.MessageType) bool {
	_, ok := converters[t]
	return ok
}

// Normalizer turns envelopes into display messages.
type Normalizer struct {
	logger *logging.Logger
}

func NewNormalizer(logger *logging.Logger) *Normalizer {
	return &Normalizer{logger: logger.With("display")}
}

// Normalize returns the display variant for env. Unknown types and undecodable payloads return
// false and are logged, never rendered as a generic message.
func (n *Normalizer) Normalize(env model.Envelope) (model.DisplayMessage, bool) {
	convert, ok := converters[env.Type]
	if !ok {
		if stateOnly[env.Type] {
			n.logger.Debugf("drop envelope type=%s reason=state_only", env.Type)
		} else {
			n.logger.Warnf("drop envelope type=%s reason=no_display_variant", env.Type)
		}
		return nil, false
	}
	msg, err := convert(env)
	if err != nil {
		n.logger.Warnf("drop envelope type=%s reason=decode error=%v", env.Type, err)
		return nil, false
	}
	return msg, true
}

// NormalizeAll converts a history, dropping what has no display variant. Order is preserved.
func (n *Normalizer) NormalizeAll(envs []model.Envelope) []model.DisplayMessage {
	out := make([]model.DisplayMessage, 0, len(envs))
	for _, env := range envs {
		if msg, ok := n.Normalize(env); ok {
			out = append(out, msg)
		}
	}
	return out
}
