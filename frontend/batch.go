package frontend

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// Result is the final answer to one batch request.
type Result struct {
	RequestID string
	Request   string
	Text      string
	Failed    bool
}

// BatchOptions configures a Batch.
type BatchOptions struct {
	// Controller is the participant requests are sent to.
	Controller string

	// Output receives every final answer. Nil discards them.
	Output io.Writer

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// Batch sends a fixed list of requests when it starts, collects the final
// output for each and then requests a swarm shutdown.
type Batch struct {
	*agent.BaseAgent
	requests []string
	opts     BatchOptions

	// owned by the run loop
	sent map[string]string

	mu      sync.Mutex
	results []Result
	done    chan struct{}
}

var _ core.Participant = (*Batch)(nil)

// NewBatch creates a batch front-end for requests.
func NewBatch(id string, router core.Router, requests []string, optFns ...func(o *BatchOptions)) *Batch {
	opts := BatchOptions{Controller: "controller"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Batch{
		BaseAgent: agent.NewBaseAgent(id, Role, router, func(o *agent.Options) { o.Logger = opts.Logger }),
		requests:  requests,
		opts:      opts,
		sent:      make(map[string]string, len(requests)),
		done:      make(chan struct{}),
	}
}

// Run implements core.Participant.
func (b *Batch) Run(ctx context.Context, inbox core.Inbox) error {
	for _, text := range b.requests {
		msg := core.NewMessage(b.ID(), b.opts.Controller, core.KindUserRequest, core.UserRequest{Text: text})
		if err := b.Deliver(msg); err != nil {
			b.record(Result{RequestID: msg.ID, Request: text, Text: err.Error(), Failed: true})
			continue
		}
		b.sent[msg.ID] = text
	}
	b.finishIfComplete()

	return b.Serve(ctx, inbox, b.handle)
}

// Done is closed once every request has a final result.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Results returns the final results collected so far, in arrival order.
func (b *Batch) Results() []Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Result(nil), b.results...)
}

func (b *Batch) handle(_ context.Context, msg core.Message) error {
	if msg.Kind != core.KindUserOutput {
		b.Ignore(msg)
		return nil
	}
	out, ok := msg.UserOutput()
	if !ok {
		return fmt.Errorf("user_output %s: unexpected payload %T", msg.ID, msg.Payload)
	}
	if !out.Final {
		return nil
	}

	request, ok := b.sent[out.RequestID]
	if !ok {
		b.Logger().Warn("output for unknown request", "request_id", out.RequestID)
		return nil
	}
	delete(b.sent, out.RequestID)

	b.record(Result{RequestID: out.RequestID, Request: request, Text: out.Text, Failed: out.Failed})
	b.finishIfComplete()
	return nil
}

func (b *Batch) record(r Result) {
	b.mu.Lock()
	b.results = append(b.results, r)
	b.mu.Unlock()

	if b.opts.Output != nil {
		status := "ok"
		if r.Failed {
			status = "failed"
		}
		fmt.Fprintf(b.opts.Output, "=== %s [%s]\n%s\n\n", r.Request, status, r.Text)
	}
}

func (b *Batch) finishIfComplete() {
	b.mu.Lock()
	complete := len(b.results) == len(b.requests)
	b.mu.Unlock()
	if !complete {
		return
	}

	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}
	b.Logger().Info("batch complete", "requests", len(b.requests))
	if err := b.RequestShutdown(); err != nil {
		b.Logger().Warn("shutdown broadcast incomplete", "error", err)
	}
}
