package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// Well-known worker roles.
const (
	RolePlanner  = "planner"
	RoleCoder    = "coder"
	RoleReviewer = "reviewer"
)

// Generator produces the content of a task result. A returned error turns
// into a task_result with Success=false; the worker fills in TaskID,
// RequestID, Role and Success itself.
type Generator interface {
	Generate(ctx context.Context, task core.TaskAssign) (core.TaskResult, error)
}

// GeneratorFunc is a functional adapter to allow ordinary functions to be used as Generators.
type GeneratorFunc func(ctx context.Context, task core.TaskAssign) (core.TaskResult, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, task core.TaskAssign) (core.TaskResult, error) {
	return f(ctx, task)
}

// Options configures a Worker.
type Options struct {
	// Timeout bounds a single Generate call. Zero means no bound.
	Timeout time.Duration

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// Worker is a participant that answers task assignments using a Generator.
type Worker struct {
	*agent.BaseAgent
	gen     Generator
	timeout time.Duration
}

var _ core.Participant = (*Worker)(nil)

// New creates a worker for role that sends results through router.
func New(id, role string, router core.Router, gen Generator, optFns ...func(o *Options)) *Worker {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Worker{
		BaseAgent: agent.NewBaseAgent(id, role, router, func(o *agent.Options) { o.Logger = opts.Logger }),
		gen:       gen,
		timeout:   opts.Timeout,
	}
}

// NewPlanner creates a planner backed by the stub generator.
func NewPlanner(id string, router core.Router, optFns ...func(o *Options)) *Worker {
	return New(id, RolePlanner, router, StubPlanner(), optFns...)
}

// NewCoder creates a coder backed by the stub generator.
func NewCoder(id string, router core.Router, optFns ...func(o *Options)) *Worker {
	return New(id, RoleCoder, router, StubCoder(), optFns...)
}

// NewReviewer creates a reviewer backed by the stub generator.
func NewReviewer(id string, router core.Router, optFns ...func(o *Options)) *Worker {
	return New(id, RoleReviewer, router, StubReviewer(), optFns...)
}

// Run implements core.Participant.
func (w *Worker) Run(ctx context.Context, inbox core.Inbox) error {
	return w.Serve(ctx, inbox, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg core.Message) error {
	switch msg.Kind {
	case core.KindTaskAssign:
		task, ok := msg.TaskAssign()
		if !ok {
			return fmt.Errorf("task_assign %s: unexpected payload %T", msg.ID, msg.Payload)
		}
		return w.perform(ctx, msg.Sender, task)
	default:
		w.Ignore(msg)
		return nil
	}
}

func (w *Worker) perform(ctx context.Context, replyTo string, task core.TaskAssign) error {
	genCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	w.Logger().Info("task started", "task_id", task.TaskID, "request_id", task.RequestID)

	result, err := w.gen.Generate(genCtx, task)
	if err != nil {
		w.Logger().Warn("task failed", "task_id", task.TaskID, "error", err)
		result = core.TaskResult{Error: err.Error()}
	}
	result.TaskID = task.TaskID
	result.RequestID = task.RequestID
	result.Role = w.Role()
	result.Success = err == nil

	if err := w.Send(replyTo, core.KindTaskResult, result); err != nil {
		return fmt.Errorf("reply to task %s: %w", task.TaskID, err)
	}
	return nil
}
