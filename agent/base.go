package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// ErrAlreadyRunning is returned by Serve when the agent's loop is already active.
var ErrAlreadyRunning = errors.New("agent is already running")

// HandlerFunc processes a single message. Returned errors are contained by
// the run loop.
type HandlerFunc func(ctx context.Context, msg core.Message) error

// HandlerPanicError wraps a panic recovered from a handler.
type HandlerPanicError struct {
	Value any
	Stack []byte
}

// Error implements error.
func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Options configures a BaseAgent.
type Options struct {
	// Logger defaults to a NoOp logger if nil. Entries carry participant and
	// role attributes.
	Logger logging.Logger

	// OnError is invoked from the run loop goroutine after a handler failure
	// has been logged.
	OnError func(msg core.Message, err error)
}

// BaseAgent bundles identity, messaging helpers and the serial run loop.
// Embed it (as a pointer) in concrete participants and supply a Run method
// that calls Serve. All exported methods are goroutine-safe.
type BaseAgent struct {
	id      string
	role    string
	router  core.Router
	logger  logging.Logger
	onError func(core.Message, error)

	mu      sync.Mutex
	running bool

	processed atomic.Int64
	failures  atomic.Int64
}

// NewBaseAgent constructs a BaseAgent that sends through router.
func NewBaseAgent(id, role string, router core.Router, optFns ...func(o *Options)) *BaseAgent {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &BaseAgent{
		id:      id,
		role:    role,
		router:  router,
		logger:  logging.With(opts.Logger, "participant", id, "role", role),
		onError: opts.OnError,
	}
}

// ID returns the participant identifier (also its bus address).
func (b *BaseAgent) ID() string { return b.id }

// Role returns the participant role (controller, planner, coder, ...).
func (b *BaseAgent) Role() string { return b.role }

// Logger returns the participant-scoped logger.
func (b *BaseAgent) Logger() logging.Logger { return b.logger }

// Processed returns the number of messages handed to the handler so far.
func (b *BaseAgent) Processed() int64 { return b.processed.Load() }

// Failures returns the number of handler invocations that failed.
func (b *BaseAgent) Failures() int64 { return b.failures.Load() }

// Running reports whether Serve is currently active.
func (b *BaseAgent) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Serve consumes messages from inbox one at a time and passes each to
// handle. It suspends while the inbox is empty and returns:
//   - nil after a KindShutdown message (the shutdown itself is not handled)
//   - nil when the inbox is closed by deregistration
//   - ctx.Err() when ctx is cancelled
//
// Handler errors and panics are logged with the message id and the loop
// continues.
func (b *BaseAgent) Serve(ctx context.Context, inbox core.Inbox, handle HandlerFunc) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		b.logger.Info("agent stopped")
	}()

	b.logger.Info("agent started")

	for {
		msg, err := inbox.Receive(ctx)
		if err != nil {
			if errors.Is(err, core.ErrMailboxClosed) {
				return nil
			}
			return err
		}

		if msg.Kind == core.KindShutdown {
			b.logger.Info("shutdown received", "sender", msg.Sender)
			return nil
		}

		// termination began while the message was in flight to us
		if err := ctx.Err(); err != nil {
			return err
		}

		b.dispatch(ctx, msg, handle)
	}
}

func (b *BaseAgent) dispatch(ctx context.Context, msg core.Message, handle HandlerFunc) {
	err := safeHandle(ctx, msg, handle)
	b.processed.Add(1)
	if err == nil {
		return
	}

	b.failures.Add(1)
	b.logger.Error("error handling message",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"sender", msg.Sender,
		"error", err,
	)
	if b.onError != nil {
		b.onError(msg, err)
	}
}

func safeHandle(ctx context.Context, msg core.Message, handle HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return handle(ctx, msg)
}

// Send delivers a directed message from this participant to the participant to.
func (b *BaseAgent) Send(to string, kind core.Kind, payload core.Payload) error {
	if to == "" {
		return fmt.Errorf("send %s: empty recipient: %w", kind, core.ErrUnknownParticipant)
	}
	return b.router.Send(core.NewMessage(b.id, to, kind, payload))
}

// Deliver routes a prebuilt message. Use it when the caller needs the
// message ID before sending (e.g. to correlate a request).
func (b *BaseAgent) Deliver(msg core.Message) error {
	if msg.IsBroadcast() {
		return b.router.Broadcast(msg)
	}
	return b.router.Send(msg)
}

// Broadcast delivers a message from this participant to every registered participant.
func (b *BaseAgent) Broadcast(kind core.Kind, payload core.Payload) error {
	return b.router.Broadcast(core.NewMessage(b.id, "", kind, payload))
}

// RequestShutdown broadcasts a swarm-wide shutdown signal.
func (b *BaseAgent) RequestShutdown() error {
	b.logger.Info("requesting shutdown")
	return b.Broadcast(core.KindShutdown, nil)
}

// Ignore records a message whose kind the handler does not act on.
func (b *BaseAgent) Ignore(msg core.Message) {
	b.logger.Debug("ignoring message", "message_id", msg.ID, "kind", msg.Kind, "sender", msg.Sender)
}
