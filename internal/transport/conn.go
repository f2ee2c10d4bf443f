package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
)

// Tap observes every envelope crossing the connection.
type Tap func(dir events.Direction, env model.Envelope)

// Options tune a Conn. Zero values fall back to defaults.
type Options struct {
	SendQueueSize int
	MaxFrameBytes int
	WriteTimeout  time.Duration
	// Validator filters inbound envelopes. Nil accepts every typed envelope.
	Validator *Validator
	Tap       Tap
}

// OptionsFromConfig maps the transport section of the config file.
func OptionsFromConfig(cfg model.TransportConfig) Options {
	return Options{
		SendQueueSize: cfg.SendQueueSize,
		MaxFrameBytes: cfg.MaxFrameBytes,
		WriteTimeout:  time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}
}

// Conn is one persistent duplex connection. Sends are queued and written by Run.
type Conn struct {
	id     string
	raw    net.Conn
	opts   Options
	out    chan model.Envelope
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to the agent backend.
func Dial(ctx context.Context, cfg model.TransportConfig, opts Options, logger *logging.Logger) (*Conn, error) {
	d := net.Dialer{Timeout: time.Duration(cfg.DialTimeoutSec) * time.Second}
	raw, err := d.DialContext(ctx, cfg.Network, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s://%s: %w", cfg.Network, cfg.Address, err)
	}
	return NewConn(raw, opts, logger), nil
}

// NewConn wraps an established net.Conn.
func NewConn(raw net.Conn, opts Options, logger *logging.Logger) *Conn {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 64
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	id := uuid.NewString()
	return &Conn{
		id:     id,
		raw:    raw,
		opts:   opts,
		out:    make(chan model.Envelope, opts.SendQueueSize),
		logger: logger.With("transport"),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues env for writing. It never blocks; ErrSendQueueFull and ErrClosed are returned
// instead.
func (c *Conn) Send(env model.Envelope) error {
	if env.Type == "" {
		return ErrEmptyType
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.out <- env:
		return nil
	default:
		return fmt.Errorf("%w: %d queued", ErrSendQueueFull, cap(c.out))
	}
}

// RequestHistory asks the backend to replay a task's history.
func (c *Conn) RequestHistory(taskID string) error {
	env, err := model.NewEnvelope(model.TypeLoadHistory, model.LoadHistoryData{TaskID: taskID})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Run reads and writes until ctx is done, the peer hangs up, or an I/O error occurs.
// onEnvelope is called from the reader goroutine, in arrival order. A clean hang-up returns nil.
func (c *Conn) Run(ctx context.Context, onEnvelope func(model.Envelope)) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		c.markClosed()
		_ = c.raw.Close()
		return nil
	})

	g.Go(func() error {
		for {
			var env model.Envelope
			if err := ReadFrame(c.raw, &env, c.opts.MaxFrameBytes); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if errors.Is(err, io.EOF) {
					c.logger.Infof("peer closed conn=%s", c.id)
					return io.EOF
				}
				return err
			}
			if err := c.validate(env); err != nil {
				c.logger.Warnf("drop inbound conn=%s error=%v", c.id, err)
				continue
			}
			c.tap(events.DirectionInbound, env)
			onEnvelope(env)
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case env := <-c.out:
				_ = c.raw.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
				if err := WriteFrame(c.raw, env); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("send %s: %w", env.Type, err)
				}
				c.tap(events.DirectionOutbound, env)
			}
		}
	})

	err := g.Wait()
	c.markClosed()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close stops a running Conn from the outside.
func (c *Conn) Close() error {
	c.markClosed()
	return c.raw.Close()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) validate(env model.Envelope) error {
	if c.opts.Validator == nil {
		if env.Type == "" {
			return ErrEmptyType
		}
		return nil
	}
	return c.opts.Validator.Validate(env)
}

func (c *Conn) tap(dir events.Direction, env model.Envelope) {
	if c.opts.Tap != nil {
		c.opts.Tap(dir, env)
	}
}
