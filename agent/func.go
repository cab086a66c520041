package agent

import (
	"context"

	"github.com/hupe1980/agentswarm/core"
)

// FuncAgent is a participant whose behaviour is a single HandlerFunc. It is
// handy for bridges, tests and small custom roles.
type FuncAgent struct {
	*BaseAgent
	handle HandlerFunc
}

var _ core.Participant = (*FuncAgent)(nil)

// NewFuncAgent creates a participant that passes every message to handle.
func NewFuncAgent(id, role string, router core.Router, handle HandlerFunc, optFns ...func(o *Options)) *FuncAgent {
	return &FuncAgent{BaseAgent: NewBaseAgent(id, role, router, optFns...), handle: handle}
}

// Run implements core.Participant.
func (f *FuncAgent) Run(ctx context.Context, inbox core.Inbox) error {
	return f.Serve(ctx, inbox, f.handle)
}
