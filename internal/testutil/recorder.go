package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
)

// Recorder is a participant that records every message it handles. It can
// stand in for a front-end or an unresponsive worker.
type Recorder struct {
	*agent.BaseAgent

	mu       sync.Mutex
	messages []core.Message
	changed  chan struct{}
}

var _ core.Participant = (*Recorder)(nil)

// NewRecorder creates a recording participant.
func NewRecorder(id, role string, router core.Router) *Recorder {
	return &Recorder{
		BaseAgent: agent.NewBaseAgent(id, role, router),
		changed:   make(chan struct{}, 1),
	}
}

// Run implements core.Participant.
func (r *Recorder) Run(ctx context.Context, inbox core.Inbox) error {
	return r.Serve(ctx, inbox, func(_ context.Context, msg core.Message) error {
		r.mu.Lock()
		r.messages = append(r.messages, msg)
		r.mu.Unlock()
		select {
		case r.changed <- struct{}{}:
		default:
		}
		return nil
	})
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OfKind returns the recorded messages of kind k.
func (r *Recorder) OfKind(k core.Kind) []core.Message {
	var out []core.Message
	for _, m := range r.Messages() {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// WaitFor blocks until at least n messages of kind k were recorded and
// returns them. It fails the test after timeout.
func (r *Recorder) WaitFor(t testing.TB, k core.Kind, n int, timeout time.Duration) []core.Message {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if got := r.OfKind(k); len(got) >= n {
			return got
		}
		select {
		case <-r.changed:
		case <-deadline.C:
			t.Fatalf("recorder %s: timed out waiting for %d %s message(s), have %d", r.ID(), n, k, len(r.OfKind(k)))
			return nil
		}
	}
}
