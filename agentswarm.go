// Package agentswarm provides a high-level façade that assembles a complete
// swarm (bus, controller, planner, coders, reviewer and lifecycle manager)
// from a config.Config. Most applications interact with this package by:
//  1. Creating a Swarm via New() (optionally overriding the model or the
//     generator of individual roles)
//  2. Adding a front-end participant (frontend.Console, frontend.Batch)
//  3. Calling Run, or Start followed by Ask for programmatic use
//
// All defaults are safe for local development and testing: without a model
// provider the workers use deterministic stub generators.
package agentswarm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/bus"
	"github.com/hupe1980/agentswarm/config"
	"github.com/hupe1980/agentswarm/controller"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/history"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/model/anthropic"
	"github.com/hupe1980/agentswarm/model/openai"
	"github.com/hupe1980/agentswarm/swarm"
	"github.com/hupe1980/agentswarm/worker"
)

// ErrNotRunning is returned by Ask before Start or after the swarm stopped.
var ErrNotRunning = errors.New("swarm is not running")

// Options configures the Swarm façade.
type Options struct {
	// Config defaults to config.Default() if nil.
	Config *config.Config

	// Model overrides the model selected by Config.Model.Provider. It backs
	// every role that has no entry in Generators.
	Model model.Model

	// Generators replaces the generator of individual roles (planner, coder,
	// reviewer).
	Generators map[string]worker.Generator

	// OnTransition observes every request stage change.
	OnTransition func(controller.Transition)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Swarm is the high-level façade aggregating the bus, the pipeline
// participants and the lifecycle manager.
type Swarm struct {
	opts       Options
	cfg        *config.Config
	bus        *bus.Bus
	controller *controller.Controller
	workers    []*worker.Worker
	history    *history.Store

	mu        sync.Mutex
	extra     []core.Participant
	lifecycle *swarm.Swarm
}

// New creates a Swarm from the configuration. Participants are constructed
// immediately; nothing runs until Start or Run.
func New(optFns ...func(o *Options)) (*Swarm, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := opts.Model
	if m == nil {
		var err error
		if m, err = NewModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	b := bus.New(func(o *bus.Options) {
		o.MailboxCapacity = cfg.MailboxCapacity
		o.ExcludeSender = cfg.BroadcastExcludeSender
		o.Logger = opts.Logger
	})

	taskTimeout := cfg.TaskTimeout
	if taskTimeout == 0 {
		taskTimeout = -1
	}
	store := history.NewStore(cfg.HistorySize)
	ctrl := controller.New(cfg.Controller, b, func(o *controller.Options) {
		o.Roster = controller.Roster{Planner: cfg.Planner, Coders: cfg.Coders, Reviewer: cfg.Reviewer}
		o.TaskTimeout = taskTimeout
		o.ProgressUpdates = cfg.ProgressUpdates
		o.OnTransition = func(tr controller.Transition) {
			store.Observe(tr)
			if opts.OnTransition != nil {
				opts.OnTransition(tr)
			}
		}
		o.OnComplete = store.Complete
		o.Logger = opts.Logger
	})

	s := &Swarm{opts: opts, cfg: cfg, bus: b, controller: ctrl, history: store}

	workerOpts := func(o *worker.Options) { o.Logger = opts.Logger }
	s.workers = append(s.workers, worker.New(cfg.Planner, worker.RolePlanner, b, s.generator(worker.RolePlanner, m), workerOpts))
	for _, id := range cfg.Coders {
		s.workers = append(s.workers, worker.New(id, worker.RoleCoder, b, s.generator(worker.RoleCoder, m), workerOpts))
	}
	s.workers = append(s.workers, worker.New(cfg.Reviewer, worker.RoleReviewer, b, s.generator(worker.RoleReviewer, m), workerOpts))

	return s, nil
}

func (s *Swarm) generator(role string, m model.Model) worker.Generator {
	if gen, ok := s.opts.Generators[role]; ok {
		return gen
	}
	if m != nil {
		return worker.NewModelGenerator(role, m)
	}
	switch role {
	case worker.RolePlanner:
		return worker.StubPlanner()
	case worker.RoleCoder:
		return worker.StubCoder()
	default:
		return worker.StubReviewer()
	}
}

// NewModel returns the model for cfg.Provider, or nil for the stub provider.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderStub, "":
		return nil, nil
	case config.ProviderMock:
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				anthropic.WithModelName(cfg.Name)(o)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", config.ErrInvalid, cfg.Provider)
	}
}

// AddParticipant adds a participant (typically a front-end) that is started
// together with the pipeline. It must be called before Start.
func (s *Swarm) AddParticipant(p core.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != nil {
		return swarm.ErrAlreadyStarted
	}
	s.extra = append(s.extra, p)
	return nil
}

// Participants returns the pipeline participants followed by added ones.
func (s *Swarm) Participants() []core.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked()
}

func (s *Swarm) participantsLocked() []core.Participant {
	out := make([]core.Participant, 0, 1+len(s.workers)+len(s.extra))
	out = append(out, s.controller)
	for _, w := range s.workers {
		out = append(out, w)
	}
	return append(out, s.extra...)
}

// Start registers every participant and launches the run loops. A failed
// Start leaves the swarm idle, so it may be retried.
func (s *Swarm) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != nil {
		return swarm.ErrAlreadyStarted
	}
	lc, err := swarm.New(s.bus, s.participantsLocked(), func(o *swarm.Options) {
		o.GracePeriod = s.cfg.GracePeriod
		o.Logger = s.opts.Logger
	})
	if err != nil {
		return err
	}
	if err := lc.Start(ctx); err != nil {
		return err
	}
	s.lifecycle = lc
	return nil
}

// Run starts the swarm and blocks until it stopped, either through a
// shutdown broadcast or the end of ctx.
func (s *Swarm) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	lc := s.current()
	<-lc.Done()
	return lc.Err()
}

// Stop ends the swarm. It is a no-op before Start and after the first call.
func (s *Swarm) Stop(ctx context.Context) error {
	if lc := s.current(); lc != nil {
		return lc.Stop(ctx)
	}
	return nil
}

// Done is closed once a started swarm has stopped. It is nil before Start.
func (s *Swarm) Done() <-chan struct{} {
	if lc := s.current(); lc != nil {
		return lc.Done()
	}
	return nil
}

// Status returns a snapshot of the swarm.
func (s *Swarm) Status() swarm.Status {
	if lc := s.current(); lc != nil {
		return lc.Status()
	}
	return swarm.Status{State: swarm.StateIdle}
}

// Abandoned lists participants that outlived the grace period.
func (s *Swarm) Abandoned() []string {
	if lc := s.current(); lc != nil {
		return lc.Abandoned()
	}
	return nil
}

// Ask submits a request from a temporary mailbox and waits for its final
// output. Progress outputs are skipped.
func (s *Swarm) Ask(ctx context.Context, text string) (core.UserOutput, error) {
	lc := s.current()
	if lc == nil || lc.State() != swarm.StateRunning {
		return core.UserOutput{}, ErrNotRunning
	}

	clientID := "client-" + core.NewID()
	inbox, err := s.bus.Register(clientID)
	if err != nil {
		return core.UserOutput{}, err
	}
	defer func() { _ = s.bus.Deregister(clientID) }()

	req := core.NewMessage(clientID, s.cfg.Controller, core.KindUserRequest, core.UserRequest{Text: text})
	if err := s.bus.Send(req); err != nil {
		return core.UserOutput{}, err
	}

	for {
		msg, err := inbox.Receive(ctx)
		if err != nil {
			if errors.Is(err, core.ErrMailboxClosed) {
				return core.UserOutput{}, ErrNotRunning
			}
			return core.UserOutput{}, err
		}
		switch msg.Kind {
		case core.KindShutdown:
			return core.UserOutput{}, ErrNotRunning
		case core.KindUserOutput:
			if out, ok := msg.UserOutput(); ok && out.Final && out.RequestID == req.ID {
				return out, nil
			}
		}
	}
}

// Config returns the configuration the swarm was built from.
func (s *Swarm) Config() *config.Config { return s.cfg }

// Bus returns the underlying message bus.
func (s *Swarm) Bus() *bus.Bus { return s.bus }

// History returns the request history.
func (s *Swarm) History() *history.Store { return s.history }

// Controller returns the pipeline controller.
func (s *Swarm) Controller() *controller.Controller { return s.controller }

func (s *Swarm) current() *swarm.Swarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}
