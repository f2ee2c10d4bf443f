// Package session wires the store, dispatch registry, workflow tracker and transport into one
// client session. Inbound envelopes and user actions are applied by a single loop goroutine in
// arrival order.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/agentsync/internal/dispatch"
	"github.com/msageha/agentsync/internal/display"
	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
	"github.com/msageha/agentsync/internal/notify"
	"github.com/msageha/agentsync/internal/store"
	"github.com/msageha/agentsync/internal/transport"
	"github.com/msageha/agentsync/internal/view"
	"github.com/msageha/agentsync/internal/workflow"
)

var (
	ErrNotConnected = errors.New("session is not connected")
	ErrNoTask       = errors.New("no task selected")
	ErrEmptyMessage = errors.New("message is empty")
)

// Options configures New. Only Config is required.
type Options struct {
	Config   model.Config
	Notifier notify.Notifier
	Journal  *events.Journal
	Logger   *logging.Logger
	// Now is the clock for locally created messages.
	Now func() time.Time
}

// Session is one client session against the agent backend.
type Session struct {
	id      string
	cfg     model.Config
	logger  *logging.Logger
	now     func() time.Time
	journal *events.Journal

	bus        *events.Bus
	store      *store.Store
	normalizer *display.Normalizer
	registry   *dispatch.Registry
	expanded   *view.Expanded
	tracker    *workflow.Tracker
	docs       *workflow.DocWatcher
	notifier   *notify.Async

	inbox chan func()

	mu   sync.RWMutex
	conn *transport.Conn
}

func New(opts Options) (*Session, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      opts.Config,
		logger:   logger.With("session"),
		now:      now,
		journal:  opts.Journal,
		bus:      events.NewBus(opts.Config.Session.BusBuffer),
		expanded: view.NewExpanded(),
		inbox:    make(chan func(), opts.Config.Session.InboxSize),
		notifier: notify.NewAsync(notifier, 0, logger),
	}
	s.normalizer = display.NewNormalizer(logger)
	s.store = store.New(s.normalizer, nil, s.bus, logger)
	s.registry = dispatch.NewRegistry(s.store, s.normalizer, logger, dispatch.DefaultHandlers(s.notifier, logger)...)
	s.tracker = workflow.NewTracker(s.bus, logger)

	if opts.Config.Workflow.WatchDocs {
		docs, err := workflow.NewDocWatcher(s.tracker, opts.Config.Workflow, logger)
		if err != nil {
			_ = s.notifier.Close()
			return nil, err
		}
		s.docs = docs
	}
	return s, nil
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Store() *store.Store          { return s.store }
func (s *Session) Bus() *events.Bus             { return s.bus }
func (s *Session) Expanded() *view.Expanded     { return s.expanded }
func (s *Session) Tracker() *workflow.Tracker   { return s.tracker }
func (s *Session) Registry() *dispatch.Registry { return s.registry }

// TransportOptions returns the connection options this session expects: inbound validation and
// journaling of both directions.
func (s *Session) TransportOptions() transport.Options {
	opts := transport.OptionsFromConfig(s.cfg.Transport)
	opts.Validator = transport.InboundValidator()
	opts.Tap = func(dir events.Direction, env model.Envelope) {
		if err := s.journal.Record(dir, env); err != nil {
			s.logger.Warnf("journal write failed: %v", err)
		}
	}
	return opts
}

// Dial connects to the configured backend.
func (s *Session) Dial(ctx context.Context) (*transport.Conn, error) {
	return transport.Dial(ctx, s.cfg.Transport, s.TransportOptions(), s.logger)
}

// Run serves conn until ctx is done or the peer hangs up. A hang-up returns nil.
func (s *Session) Run(ctx context.Context, conn *transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setConn(conn)
	s.store.SetHistoryRequester(conn)
	s.logger.Infof("session started id=%s conn=%s", s.id, conn.ID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(gctx)
		return nil
	})
	if s.docs != nil {
		g.Go(func() error {
			if err := s.docs.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	s.enqueue(gctx, func() { s.store.SetConnected(true) })

	g.Go(func() error {
		defer cancel()
		return conn.Run(gctx, func(env model.Envelope) {
			s.enqueue(gctx, func() { s.handleInbound(env) })
		})
	})

	err := g.Wait()

	s.setConn(nil)
	s.store.SetConnected(false)
	s.store.SetHistoryRequester(nil)
	s.logger.Infof("session stopped id=%s", s.id)
	return err
}

// Close releases resources not owned by Run.
func (s *Session) Close() error {
	var errs []error
	if s.docs != nil {
		errs = append(errs, s.docs.Close())
	}
	errs = append(errs, s.notifier.Close())
	s.bus.Close()
	errs = append(errs, s.journal.Close())
	return errors.Join(errs...)
}

func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case op := <-s.inbox:
			op()
		}
	}
}

// drain runs whatever is still queued, so envelopes read before a hang-up are applied.
func (s *Session) drain() {
	for {
		select {
		case op := <-s.inbox:
			op()
		default:
			return
		}
	}
}

func (s *Session) enqueue(ctx context.Context, op func()) bool {
	select {
	case s.inbox <- op:
		return true
	case <-ctx.Done():
		return false
	}
}

// call runs op on the loop and waits for its result.
func (s *Session) call(ctx context.Context, op func() error) error {
	if s.connection() == nil {
		return ErrNotConnected
	}
	done := make(chan error, 1)
	if !s.enqueue(ctx, func() { done <- op() }) {
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handleInbound(env model.Envelope) {
	res := s.registry.Dispatch(env)
	switch {
	case res.ConsumedBy != "":
		s.logger.Debugf("inbound type=%s handler=%s", env.Type, res.ConsumedBy)
	case res.Displayed:
		s.logger.Debugf("inbound type=%s displayed task=%s", env.Type, res.TaskID)
	}
}

func (s *Session) setConn(c *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = c
}

func (s *Session) connection() *transport.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) send(t model.MessageType, data any) error {
	conn := s.connection()
	if conn == nil {
		return ErrNotConnected
	}
	env, err := model.NewEnvelope(t, data)
	if err != nil {
		return err
	}
	if err := conn.Send(env); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

func (s *Session) resolveTask(taskID string) (string, error) {
	if taskID != "" {
		return taskID, nil
	}
	if main := s.store.MainTaskID(); main != "" {
		return main, nil
	}
	return "", ErrNoTask
}

// SendUserMessage shows text as a pending message in the task and sends it. An empty taskID
// targets the main task. The message flips to acked when the backend acknowledges it.
func (s *Session) SendUserMessage(ctx context.Context, taskID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return s.call(ctx, func() error {
		id, err := s.resolveTask(taskID)
		if err != nil {
			return err
		}
		now := s.now()
		s.store.EnsureTask(id, "", "")
		s.store.AppendDisplayMessage(id, model.NewUserMessage(text, model.UserMessagePending, &now))
		return s.send(model.TypeUserSendMessage, model.UserMessageData{
			TaskID:     id,
			Message:    text,
			UpdateTime: model.At(now),
		})
	})
}

// CreateTask asks the backend for a new root task. Its id arrives with the ack or taskCreated.
func (s *Session) CreateTask(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return s.call(ctx, func() error {
		return s.send(model.TypeCreateTask, model.CreateTaskData{Message: message})
	})
}

// CallSubTask delegates message to a subtask of taskID. An empty subTaskID asks the backend to
// allocate one.
func (s *Session) CallSubTask(ctx context.Context, taskID, subTaskID, message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return s.call(ctx, func() error {
		id, err := s.resolveTask(taskID)
		if err != nil {
			return err
		}
		s.store.EnsureTask(id, "", "")
		if subTaskID != "" {
			s.store.EnsureTask(subTaskID, id, "")
		}
		return s.send(model.TypeCallSubTask, model.CallSubTaskData{TaskID: id, SubTaskID: subTaskID, Message: message})
	})
}

// Resume asks the backend to continue an interrupted task.
func (s *Session) Resume(ctx context.Context, taskID string) error {
	return s.call(ctx, func() error {
		id, err := s.resolveTask(taskID)
		if err != nil {
			return err
		}
		return s.send(model.TypeResume, model.ResumeData{TaskID: id})
	})
}

// Navigate focuses taskID, creating it if needed. The store requests its history.
func (s *Session) Navigate(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrNoTask
	}
	return s.call(ctx, func() error {
		s.store.SetMainTaskID(taskID)
		return nil
	})
}

// ToggleExpanded flips the expansion of the message at index in taskID and returns the new state.
func (s *Session) ToggleExpanded(taskID string, index int) (bool, error) {
	id, err := s.resolveTask(taskID)
	if err != nil {
		return false, err
	}
	msgs := s.store.Messages(id)
	if index < 0 || index >= len(msgs) {
		return false, fmt.Errorf("message %d out of range for task %s (%d messages)", index, id, len(msgs))
	}
	return s.expanded.Toggle(view.KeyFor(msgs[index])), nil
}

// BeginWorkflow starts the phase workflow for taskID, with documents under the configured docs
// root. Documents already present are registered immediately.
func (s *Session) BeginWorkflow(taskID, name string) (*model.TaskContext, error) {
	id, err := s.resolveTask(taskID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.cfg.Workflow.DocsRoot, id)
	if _, err := s.tracker.Begin(id, name, dir); err != nil {
		return nil, err
	}
	if s.docs != nil {
		if err := s.docs.Watch(id, dir); err != nil {
			s.logger.Warnf("docs watch failed task=%s error=%v", id, err)
		}
	}
	ctx, _ := s.tracker.Context(id)
	return ctx, nil
}

// AdvanceWorkflow moves taskID to phase to. Reaching complete stops watching its documents.
func (s *Session) AdvanceWorkflow(taskID string, to model.WorkflowPhase) error {
	id, err := s.resolveTask(taskID)
	if err != nil {
		return err
	}
	if err := s.tracker.Advance(id, to); err != nil {
		return err
	}
	if model.IsTerminalPhase(to) && s.docs != nil {
		if ctx, ok := s.tracker.Context(id); ok {
			s.docs.Unwatch(ctx.DocsPath)
		}
	}
	return nil
}

// RegisterDocument records a workflow document by hand, for setups without the watcher.
func (s *Session) RegisterDocument(taskID string, kind model.DocumentKind, path string) error {
	id, err := s.resolveTask(taskID)
	if err != nil {
		return err
	}
	return s.tracker.SetDocument(id, kind, path)
}
