package frontend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/history"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/swarm"
)

// Role is the participant role of front-ends.
const Role = "user"

const banner = `==================================================
  Agentic Swarm - Interactive CLI
  Type a request and the swarm will collaborate.
  Commands: quit, exit, status, history
==================================================
`

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// Controller is the participant requests are sent to.
	Controller string

	// Prompt is written before every line is read.
	Prompt string

	// ResponseTimeout bounds the wait for a final output before the next
	// line is read. Zero reads the next line immediately.
	ResponseTimeout time.Duration

	// Status backs the status command. Nil prints a generic line.
	Status func() swarm.Status

	// History backs the history command. Nil disables the command.
	History *history.Store

	// HistoryLimit is the number of records the history command prints.
	HistoryLimit int

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// Console reads requests line by line from an io.Reader and writes every
// output it receives to an io.Writer.
type Console struct {
	*agent.BaseAgent
	in   io.Reader
	out  io.Writer
	opts ConsoleOptions

	outMu   sync.Mutex
	mu      sync.Mutex
	waiting map[string]chan struct{}
}

var _ core.Participant = (*Console)(nil)

// NewConsole creates an interactive front-end.
func NewConsole(id string, router core.Router, in io.Reader, out io.Writer, optFns ...func(o *ConsoleOptions)) *Console {
	opts := ConsoleOptions{
		Controller:      "controller",
		Prompt:          "swarm> ",
		ResponseTimeout: 30 * time.Second,
		HistoryLimit:    10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Console{
		BaseAgent: agent.NewBaseAgent(id, Role, router, func(o *agent.Options) { o.Logger = opts.Logger }),
		in:        in,
		out:       out,
		opts:      opts,
		waiting:   make(map[string]chan struct{}),
	}
}

// Run implements core.Participant. Input is read on a separate goroutine;
// end of input requests a swarm shutdown.
func (c *Console) Run(ctx context.Context, inbox core.Inbox) error {
	c.printf("%s", banner)
	go c.readLoop(ctx)
	return c.Serve(ctx, inbox, c.handle)
}

func (c *Console) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for {
		c.printf("\n%s", c.opts.Prompt)
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return
		}
		if !c.handleLine(ctx, strings.TrimSpace(scanner.Text())) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.Logger().Warn("reading input failed", "error", err)
	}
	if ctx.Err() == nil {
		c.shutdown()
	}
}

// handleLine reports whether reading should continue.
func (c *Console) handleLine(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "":
		return true
	case "quit", "exit":
		c.shutdown()
		return false
	case "status":
		c.printStatus()
		return true
	case "history":
		if c.opts.History != nil {
			c.printHistory()
			return true
		}
	}

	msg := core.NewMessage(c.ID(), c.opts.Controller, core.KindUserRequest, core.UserRequest{Text: line})
	done := c.expect(msg.ID)
	if err := c.Deliver(msg); err != nil {
		c.forget(msg.ID)
		c.printf("  error: %v\n", err)
		return true
	}
	c.printf("  -> Request sent to swarm.\n")

	if c.opts.ResponseTimeout <= 0 {
		c.forget(msg.ID)
		return true
	}

	timer := time.NewTimer(c.opts.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.forget(msg.ID)
		c.printf("  (timed out waiting for response)\n")
	case <-ctx.Done():
		return false
	}
	return true
}

func (c *Console) handle(_ context.Context, msg core.Message) error {
	if msg.Kind != core.KindUserOutput {
		c.Ignore(msg)
		return nil
	}
	out, ok := msg.UserOutput()
	if !ok {
		return fmt.Errorf("user_output %s: unexpected payload %T", msg.ID, msg.Payload)
	}

	text := out.Text
	if out.Failed {
		text = "error: " + text
	}
	c.printf("  %s\n", strings.ReplaceAll(text, "\n", "\n  "))

	if out.Final {
		c.mu.Lock()
		if ch, ok := c.waiting[out.RequestID]; ok {
			close(ch)
			delete(c.waiting, out.RequestID)
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Console) expect(requestID string) <-chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiting[requestID] = ch
	c.mu.Unlock()
	return ch
}

func (c *Console) forget(requestID string) {
	c.mu.Lock()
	delete(c.waiting, requestID)
	c.mu.Unlock()
}

func (c *Console) shutdown() {
	c.printf("Shutting down swarm...\n")
	if err := c.RequestShutdown(); err != nil {
		c.Logger().Warn("shutdown broadcast incomplete", "error", err)
	}
}

func (c *Console) printStatus() {
	if c.opts.Status == nil {
		c.printf("  Swarm is running. Agents are listening.\n")
		return
	}
	status := c.opts.Status()
	c.printf("  Swarm is %s.\n", status.State)
	for _, p := range status.Participants {
		state := "stopped"
		if p.Running {
			state = "running"
		}
		c.printf("  %-12s %-10s %-8s pending=%d\n", p.ID, p.Role, state, p.Pending)
	}
}

func (c *Console) printHistory() {
	records := c.opts.History.List()
	if len(records) == 0 {
		c.printf("  No requests yet.\n")
		return
	}
	if n := c.opts.HistoryLimit; n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	for _, r := range records {
		id := r.RequestID
		if len(id) > 8 {
			id = id[:8]
		}
		c.printf("  %s  %-8s %-8s %s\n", id, r.Stage, r.Duration().Round(time.Millisecond), r.Request)
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
