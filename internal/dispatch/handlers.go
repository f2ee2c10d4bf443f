package dispatch

import (
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
	"github.com/msageha/agentsync/internal/notify"
)

// Handler names, in canonical order.
const (
	HandlerAck              = "ack"
	HandlerSessionHistories = "session_histories"
	HandlerStateChange      = "state_change"
	HandlerTaskHistory      = "task_history"
	HandlerTaskCreated      = "task_created"
	HandlerDefault          = "default"
)

// DefaultHandlers returns the canonical chain. Acknowledgement and history handlers precede the
// default handler so their envelopes are never displayed as well.
func DefaultHandlers(notifier notify.Notifier, logger *logging.Logger) []Handler {
	logger = logger.With("dispatch")
	return []Handler{
		AckHandler(logger),
		SessionHistoriesHandler(logger),
		StateChangeHandler(notifier, logger),
		TaskHistoryHandler(logger),
		TaskCreatedHandler(logger),
		DefaultHandler(),
	}
}

// AckHandler consumes acknowledgements of user actions. The first acknowledged task becomes the
// main task when none is focused yet. A pending user message is matched by text, newest first.
func AckHandler(logger *logging.Logger) Handler {
	return Handler{
		Name:  HandlerAck,
		Types: []model.MessageType{model.TypeAck},
		Handle: func(env model.Envelope, port Port) bool {
			var d model.AckData
			if err := env.Decode(&d); err != nil {
				logger.Warnf("ack ignored error=%v", err)
				return true
			}
			taskID := effectiveTaskID(d.TaskID, port)
			if taskID == "" {
				logger.Warnf("ack ignored target=%s reason=no_task", d.TargetMessage.Type)
				return true
			}
			if port.MainTaskID() == "" {
				port.SetMainTaskID(taskID)
			}
			port.EnsureTask(taskID, "", "")

			switch d.TargetMessage.Type {
			case model.TypeUserSendMessage:
				port.SetLoading(taskID, true)
				var um model.UserMessageData
				if err := d.TargetMessage.Decode(&um); err != nil {
					logger.Warnf("ack target undecodable task=%s error=%v", taskID, err)
					return true
				}
				if !port.UpdateUserMessageStatus(taskID, um.Message, model.UserMessageAcked) {
					logger.Debugf("ack unmatched task=%s", taskID)
				}
			case model.TypeResume:
				port.SetLoading(taskID, true)
			default:
				logger.Debugf("ack task=%s target=%s", taskID, d.TargetMessage.Type)
			}
			return true
		},
	}
}

// SessionHistoriesHandler folds a batch of independent histories into the store.
func SessionHistoriesHandler(logger *logging.Logger) Handler {
	return Handler{
		Name:  HandlerSessionHistories,
		Types: []model.MessageType{model.TypeSessionHistories},
		Handle: func(env model.Envelope, port Port) bool {
			var d model.SessionHistoriesData
			if err := env.Decode(&d); err != nil {
				logger.Warnf("session histories ignored error=%v", err)
				return true
			}
			port.HandleSessionHistories(d.Histories)
			return true
		},
	}
}

// StateChangeHandler clears the loading flag on terminal and interrupting events and surfaces
// alerts through the notifier. It never consumes: interrupts and alerts are displayed afterwards,
// and conversationOver has no display variant so the normalizer drops it.
func StateChangeHandler(notifier notify.Notifier, logger *logging.Logger) Handler {
	return Handler{
		Name:  HandlerStateChange,
		Types: []model.MessageType{model.TypeConversationOver, model.TypeInterrupt, model.TypeAlert},
		Handle: func(env model.Envelope, port Port) bool {
			taskID := effectiveTaskID(env.TaskID(), port)
			if taskID != "" {
				port.SetLoading(taskID, false)
			}
			if env.Type != model.TypeAlert || notifier == nil {
				return false
			}
			var d model.AlertData
			if err := env.Decode(&d); err != nil {
				logger.Warnf("alert undecodable error=%v", err)
				return false
			}
			n := notify.Notification{TaskID: taskID, Level: d.Level, Title: "agentsync", Message: d.Message}
			if err := notifier.Notify(n); err != nil {
				logger.Warnf("alert notification failed task=%s error=%v", taskID, err)
			}
			return false
		},
	}
}

// TaskHistoryHandler replaces a task's or subtask's display sequence with its full history.
func TaskHistoryHandler(logger *logging.Logger) Handler {
	return Handler{
		Name:  HandlerTaskHistory,
		Types: []model.MessageType{model.TypeTaskHistory, model.TypeSubTaskHistory},
		Handle: func(env model.Envelope, port Port) bool {
			if env.Type == model.TypeSubTaskHistory {
				var d model.SubTaskHistoryData
				if err := env.Decode(&d); err != nil || d.SubTaskID == "" {
					logger.Warnf("subtask history ignored error=%v", err)
					return true
				}
				port.EnsureTask(d.SubTaskID, d.TaskID, d.Name)
				port.HandleTaskHistory(d.SubTaskID, d.Messages)
				return true
			}
			var d model.TaskHistoryData
			if err := env.Decode(&d); err != nil {
				logger.Warnf("task history ignored error=%v", err)
				return true
			}
			taskID := effectiveTaskID(d.TaskID, port)
			if taskID == "" {
				logger.Warnf("task history ignored reason=no_task")
				return true
			}
			port.HandleTaskHistory(taskID, d.Messages)
			return true
		},
	}
}

// TaskCreatedHandler registers new tasks and links subtasks to their parent. A root task created
// before any task is focused becomes the main task.
func TaskCreatedHandler(logger *logging.Logger) Handler {
	return Handler{
		Name:  HandlerTaskCreated,
		Types: []model.MessageType{model.TypeTaskCreated},
		Handle: func(env model.Envelope, port Port) bool {
			var d model.TaskCreatedData
			if err := env.Decode(&d); err != nil || d.TaskID == "" {
				logger.Warnf("task created ignored error=%v", err)
				return true
			}
			port.EnsureTask(d.TaskID, d.ParentID, d.Name)
			if d.ParentID == "" && port.MainTaskID() == "" {
				port.SetMainTaskID(d.TaskID)
			}
			return true
		},
	}
}

// DefaultHandler matches everything and forwards it to display.
func DefaultHandler() Handler {
	return Handler{
		Name: HandlerDefault,
		Handle: func(model.Envelope, Port) bool {
			return false
		},
	}
}
