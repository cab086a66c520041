package controller

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/worker"
)

// Role is the participant role of the Controller.
const Role = "controller"

// DefaultTaskTimeout bounds how long the Controller waits for any one task.
const DefaultTaskTimeout = 30 * time.Second

// Options configures a Controller.
type Options struct {
	// Roster names the workers to dispatch to. Defaults to DefaultRoster.
	Roster Roster

	// TaskTimeout fails a request when a dispatched task is not answered in
	// time. Zero uses DefaultTaskTimeout; a negative value disables the bound.
	TaskTimeout time.Duration

	// ProgressUpdates sends non-final user_output messages at each stage.
	ProgressUpdates bool

	// OnTransition observes every stage change. It runs on the Controller's
	// goroutine and must not block.
	OnTransition func(Transition)

	// OnComplete observes every request once it is terminal, just before its
	// final output is sent. It runs on the Controller's goroutine and must not
	// block.
	OnComplete func(Outcome)

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// Controller orchestrates the pipeline for every user request.
type Controller struct {
	*agent.BaseAgent
	opts Options

	// owned by the run loop
	requests  map[string]*RequestState
	tasks     map[string]*TaskAssignment
	nextCoder int

	inFlight    atomic.Int64
	outstanding atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
}

var _ core.Participant = (*Controller)(nil)

// New creates a Controller with the given id that sends through router.
func New(id string, router core.Router, optFns ...func(o *Options)) *Controller {
	opts := Options{
		Roster:      DefaultRoster(),
		TaskTimeout: DefaultTaskTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TaskTimeout == 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}

	return &Controller{
		BaseAgent: agent.NewBaseAgent(id, Role, router, func(o *agent.Options) { o.Logger = opts.Logger }),
		opts:      opts,
		requests:  make(map[string]*RequestState),
		tasks:     make(map[string]*TaskAssignment),
	}
}

// Run implements core.Participant. Pending task timers are stopped when the
// loop exits.
func (c *Controller) Run(ctx context.Context, inbox core.Inbox) error {
	defer c.stopTimers()
	return c.Serve(ctx, inbox, c.handle)
}

// Stats returns counters describing the Controller's current load.
func (c *Controller) Stats() Stats {
	return Stats{
		InFlight:    c.inFlight.Load(),
		Outstanding: c.outstanding.Load(),
		Completed:   c.completed.Load(),
		Failed:      c.failed.Load(),
	}
}

// Roster returns the workers this Controller dispatches to.
func (c *Controller) Roster() Roster { return c.opts.Roster }

func (c *Controller) handle(_ context.Context, msg core.Message) error {
	switch msg.Kind {
	case core.KindUserRequest:
		return c.onUserRequest(msg)
	case core.KindTaskResult:
		return c.onTaskResult(msg)
	case core.KindTaskTimeout:
		if msg.Sender != c.ID() {
			c.Ignore(msg)
			return nil
		}
		return c.onTaskTimeout(msg)
	default:
		c.Ignore(msg)
		return nil
	}
}

func (c *Controller) onUserRequest(msg core.Message) error {
	req, ok := msg.UserRequest()
	if !ok {
		return fmt.Errorf("user_request %s: unexpected payload %T", msg.ID, msg.Payload)
	}

	state := &RequestState{
		ID:          msg.ID,
		Origin:      msg.Sender,
		Text:        strings.TrimSpace(req.Text),
		StartedAt:   time.Now(),
		outstanding: make(map[string]struct{}),
	}
	c.requests[state.ID] = state
	c.inFlight.Add(1)
	c.transition(state, StagePlanning, "request received")

	if state.Text == "" {
		c.fail(state, "empty request")
		return nil
	}

	c.progress(state, "Received request. Planning...")
	if err := c.dispatch(state, c.opts.Roster.Planner, worker.RolePlanner, state.Text, nil, -1); err != nil {
		c.fail(state, fmt.Sprintf("dispatch to planner: %v", err))
	}
	return nil
}

func (c *Controller) onTaskResult(msg core.Message) error {
	res, ok := msg.TaskResult()
	if !ok {
		return fmt.Errorf("task_result %s: unexpected payload %T", msg.ID, msg.Payload)
	}

	task, ok := c.tasks[res.TaskID]
	if !ok {
		c.Logger().Warn("task result with unknown correlation id",
			"task_id", res.TaskID, "request_id", res.RequestID, "sender", msg.Sender)
		return nil
	}
	c.forget(task)

	state, ok := c.requests[task.RequestID]
	if !ok || state.Stage != task.Stage {
		c.Logger().Warn("task result for inactive request", "task_id", task.TaskID, "request_id", task.RequestID)
		return nil
	}
	if msg.Sender != task.Worker {
		c.Logger().Warn("task result from unexpected sender",
			"task_id", task.TaskID, "expected", task.Worker, "sender", msg.Sender)
	}

	c.Logger().Info("task completed",
		"task_id", task.TaskID, "request_id", state.ID, "worker", task.Worker,
		"success", res.Success, "elapsed", time.Since(task.DispatchedAt))

	if !res.Success {
		c.fail(state, fmt.Sprintf("%s %s failed: %s", task.Role, task.Worker, res.Error))
		return nil
	}

	switch task.Stage {
	case StagePlanning:
		c.onPlan(state, res)
	case StageCoding:
		c.onCode(state, task, res)
	case StageReview:
		c.onReview(state, res)
	}
	return nil
}

func (c *Controller) onPlan(state *RequestState, res core.TaskResult) {
	subtasks := res.Subtasks
	if len(subtasks) == 0 {
		subtasks = SplitPlan(res.Output)
	}
	if len(subtasks) == 0 {
		c.fail(state, "planner returned no subtasks")
		return
	}
	if len(c.opts.Roster.Coders) == 0 {
		c.fail(state, "no coders configured")
		return
	}

	state.Plan = res.Output
	state.Subtasks = subtasks
	state.Results = make([]string, len(subtasks))
	c.transition(state, StageCoding, fmt.Sprintf("plan with %d subtask(s)", len(subtasks)))
	c.progress(state, fmt.Sprintf("Plan ready. Dispatching %d coding task(s)...", len(subtasks)))

	for i, subtask := range subtasks {
		coder := c.pickCoder()
		if err := c.dispatch(state, coder, worker.RoleCoder, subtask, nil, i); err != nil {
			c.fail(state, fmt.Sprintf("dispatch to coder: %v", err))
			return
		}
	}
}

func (c *Controller) onCode(state *RequestState, task *TaskAssignment, res core.TaskResult) {
	state.Results[task.Index] = res.Output
	state.Completed++
	c.progress(state, fmt.Sprintf("[%s] Completed %d/%d: %s",
		task.Worker, state.Completed, len(state.Subtasks), state.Subtasks[task.Index]))

	if state.Completed < len(state.Subtasks) {
		return
	}

	c.transition(state, StageReview, "all subtasks completed")
	c.progress(state, "Coding finished. Reviewing...")

	description := fmt.Sprintf("Review code for: %s", state.Text)
	if err := c.dispatch(state, c.opts.Roster.Reviewer, worker.RoleReviewer, description, composeReviewInputs(state), -1); err != nil {
		c.fail(state, fmt.Sprintf("dispatch to reviewer: %v", err))
	}
}

func (c *Controller) onReview(state *RequestState, res core.TaskResult) {
	state.Verdict = strings.TrimSpace(res.Verdict)
	state.Review = res.Output
	if state.Verdict == "" {
		state.Verdict = firstLine(res.Output)
	}

	c.transition(state, StageDone, "review completed")
	answer := composeAnswer(state)
	c.report(state, answer)
	c.respond(state, core.UserOutput{RequestID: state.ID, Text: answer, Final: true})
	c.evict(state)
	c.completed.Add(1)
}

func (c *Controller) onTaskTimeout(msg core.Message) error {
	timeout, ok := msg.TaskTimeout()
	if !ok {
		return fmt.Errorf("task_timeout %s: unexpected payload %T", msg.ID, msg.Payload)
	}

	task, ok := c.tasks[timeout.TaskID]
	if !ok {
		// answered before the timer message was handled
		return nil
	}
	c.forget(task)

	state, ok := c.requests[task.RequestID]
	if !ok {
		return nil
	}
	c.Logger().Warn("task timed out", "task_id", task.TaskID, "request_id", state.ID, "worker", task.Worker)
	c.fail(state, fmt.Sprintf("%s %s did not answer within %s", task.Role, task.Worker, c.opts.TaskTimeout))
	return nil
}

// dispatch records a TaskAssignment and sends it to workerID. The state's
// current stage is captured so late answers from earlier stages are dropped.
func (c *Controller) dispatch(state *RequestState, workerID, role, description string, inputs []string, index int) error {
	task := &TaskAssignment{
		TaskID:       core.NewID(),
		RequestID:    state.ID,
		Worker:       workerID,
		Role:         role,
		Stage:        state.Stage,
		Index:        index,
		DispatchedAt: time.Now(),
	}

	err := c.Send(workerID, core.KindTaskAssign, core.TaskAssign{
		TaskID:      task.TaskID,
		RequestID:   state.ID,
		Role:        role,
		Description: description,
		Inputs:      inputs,
	})
	if err != nil {
		return err
	}

	c.tasks[task.TaskID] = task
	state.outstanding[task.TaskID] = struct{}{}
	c.outstanding.Add(1)
	c.armTimer(task)

	c.Logger().Debug("task assigned", "task_id", task.TaskID, "request_id", state.ID, "worker", workerID, "role", role)
	return nil
}

func (c *Controller) armTimer(task *TaskAssignment) {
	if c.opts.TaskTimeout <= 0 {
		return
	}
	taskID := task.TaskID
	task.timer = time.AfterFunc(c.opts.TaskTimeout, func() {
		if err := c.Send(c.ID(), core.KindTaskTimeout, core.TaskTimeout{TaskID: taskID}); err != nil {
			c.Logger().Debug("task timeout not delivered", "task_id", taskID, "error", err)
		}
	})
}

// forget removes a task from the correlation registry and stops its timer.
func (c *Controller) forget(task *TaskAssignment) {
	if _, ok := c.tasks[task.TaskID]; !ok {
		return
	}
	task.stopTimer()
	delete(c.tasks, task.TaskID)
	if state, ok := c.requests[task.RequestID]; ok {
		delete(state.outstanding, task.TaskID)
	}
	c.outstanding.Add(-1)
}

func (c *Controller) pickCoder() string {
	coders := c.opts.Roster.Coders
	coder := coders[c.nextCoder%len(coders)]
	c.nextCoder++
	return coder
}

func (c *Controller) fail(state *RequestState, reason string) {
	if state.Stage.Terminal() {
		return
	}
	for taskID := range state.outstanding {
		if task, ok := c.tasks[taskID]; ok {
			c.forget(task)
		}
	}

	c.transition(state, StageFailed, reason)
	answer := "Request failed: " + reason
	c.report(state, answer)
	c.respond(state, core.UserOutput{RequestID: state.ID, Text: answer, Final: true, Failed: true})
	c.evict(state)
	c.failed.Add(1)
}

func (c *Controller) transition(state *RequestState, to Stage, reason string) {
	from := state.Stage
	if !from.canAdvanceTo(to) {
		c.Logger().Error("invalid stage transition", "request_id", state.ID, "from", from, "to", to)
		return
	}
	state.Stage = to

	c.Logger().Info("request stage changed", "request_id", state.ID, "from", from, "to", to, "reason", reason)
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(Transition{
			RequestID: state.ID,
			Origin:    state.Origin,
			Request:   state.Text,
			From:      from,
			To:        to,
			Reason:    reason,
			At:        time.Now(),
		})
	}
}

func (c *Controller) progress(state *RequestState, text string) {
	if !c.opts.ProgressUpdates {
		return
	}
	c.respond(state, core.UserOutput{RequestID: state.ID, Text: text})
}

func (c *Controller) respond(state *RequestState, out core.UserOutput) {
	if err := c.Send(state.Origin, core.KindUserOutput, out); err != nil {
		c.Logger().Warn("user output not delivered", "request_id", state.ID, "origin", state.Origin, "error", err)
	}
}

func (c *Controller) report(state *RequestState, answer string) {
	c.Logger().Info("request finished", "request_id", state.ID, "stage", state.Stage, "elapsed", time.Since(state.StartedAt))
	if c.opts.OnComplete == nil {
		return
	}
	c.opts.OnComplete(Outcome{
		RequestID: state.ID,
		Origin:    state.Origin,
		Request:   state.Text,
		Stage:     state.Stage,
		Subtasks:  append([]string(nil), state.Subtasks...),
		Answer:    answer,
		StartedAt: state.StartedAt,
		EndedAt:   time.Now(),
	})
}

func (c *Controller) evict(state *RequestState) {
	if _, ok := c.requests[state.ID]; !ok {
		return
	}
	delete(c.requests, state.ID)
	c.inFlight.Add(-1)
}

func (c *Controller) stopTimers() {
	for _, task := range c.tasks {
		task.stopTimer()
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
