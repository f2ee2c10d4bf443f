package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/model"
	"github.com/msageha/agentsync/internal/store"
	"github.com/msageha/agentsync/internal/view"
)

const collapsedWidth = 72

// printer renders store changes for the focused task as plain lines.
type printer struct {
	mu       sync.Mutex
	out      io.Writer
	store    *store.Store
	expanded *view.Expanded
	now      func() time.Time
}

func newPrinter(out io.Writer, st *store.Store, expanded *view.Expanded) *printer {
	return &printer{out: out, store: st, expanded: expanded, now: time.Now}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) onEvent(e events.Event) {
	main := p.store.MainTaskID()
	switch e.Type {
	case events.EventMainTaskChanged:
		p.printf("== task %s ==\n", e.TaskID)
	case events.EventMessageAppended:
		if e.TaskID != main {
			return
		}
		idx, _ := e.Data["index"].(int)
		msgs := p.store.Messages(e.TaskID)
		if idx < len(msgs) {
			p.printf("%s\n", p.format(idx, msgs[idx]))
		}
	case events.EventHistoryReplaced:
		if e.TaskID == main {
			p.reprint(main)
		}
	case events.EventLoadingChanged:
		if e.TaskID != main {
			return
		}
		if loading, _ := e.Data["loading"].(bool); loading {
			p.printf("… working\n")
		}
	case events.EventPhaseTransition:
		p.printf("phase %s: %v → %v\n", e.TaskID, e.Data["from"], e.Data["to"])
	case events.EventDocumentRegistered:
		p.printf("document %s: %v at %v\n", e.TaskID, e.Data["kind"], e.Data["path"])
	}
}

// reprint writes every message of taskID.
func (p *printer) reprint(taskID string) {
	msgs := p.store.Messages(taskID)
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s: %s messages --\n", taskID, humanize.Comma(int64(len(msgs))))
	for i, msg := range msgs {
		b.WriteString(p.format(i, msg))
		b.WriteByte('\n')
	}
	p.printf("%s", b.String())
}

func (p *printer) printTasks(main string) {
	var b strings.Builder
	for _, id := range p.store.TaskIDs() {
		task, ok := p.store.Task(id)
		if !ok {
			continue
		}
		marker := " "
		if id == main {
			marker = "*"
		}
		state := "idle"
		if task.Loading {
			state = "working"
		}
		fmt.Fprintf(&b, "%s %-12s %-8s %s", marker, id, state, task.Name)
		if task.ParentID != "" {
			fmt.Fprintf(&b, " (sub of %s)", task.ParentID)
		}
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		b.WriteString("no tasks\n")
	}
	p.printf("%s", b.String())
}

func (p *printer) format(i int, msg model.DisplayMessage) string {
	return formatMessage(i, msg, p.expanded.IsExpanded(view.KeyFor(msg)), p.now())
}

// formatMessage renders one message. Thoughts and tool calls collapse to one line unless
// expanded.
func formatMessage(i int, msg model.DisplayMessage, expanded bool, now time.Time) string {
	var body string
	switch m := msg.(type) {
	case *model.UserMessage:
		body = "you: " + m.Text
		if m.Status == model.UserMessagePending {
			body += " (sending)"
		}
	case *model.ThinkMessage:
		body = "thinking: " + collapse(m.Content, expanded)
	case *model.ToolInvocationMessage:
		body = "tool " + m.Tool + ": " + collapse(m.Input, expanded)
		if m.Output != "" {
			if expanded {
				body += "\n" + indent(m.Output)
			} else {
				body += fmt.Sprintf(" [%s output]", humanize.Bytes(uint64(len(m.Output))))
			}
		}
	case *model.CompletionResultMessage:
		body = "agent: " + m.Result
	case *model.ErrorMessage:
		body = "error: " + m.Message
	case *model.AlertMessage:
		body = fmt.Sprintf("alert[%s]: %s", m.Level, m.Message)
	case *model.InterruptMessage:
		body = "interrupted " + m.Reason
	case *model.ConnectedMessage:
		body = "connected " + m.SessionID
	default:
		body = string(msg.Kind())
	}

	line := fmt.Sprintf("[%d] %s", i, strings.TrimRight(body, " "))
	if at := msg.UpdateTime(); at != nil {
		line += "  · " + humanize.RelTime(*at, now, "ago", "from now")
	}
	return line
}

func collapse(s string, expanded bool) string {
	if expanded {
		return "\n" + indent(s)
	}
	first, _, more := strings.Cut(strings.TrimSpace(s), "\n")
	if len(first) > collapsedWidth {
		first, more = first[:collapsedWidth], true
	}
	if more {
		first += " …"
	}
	return first
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
