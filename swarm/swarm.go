package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentswarm/bus"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

const (
	// DefaultGracePeriod bounds the wait for run loops during Stop.
	DefaultGracePeriod = 5 * time.Second

	// DefaultObserverID is the bus address of the shutdown observer.
	DefaultObserverID = "swarm"
)

var (
	// ErrNoParticipants is returned by New for an empty participant list.
	ErrNoParticipants = errors.New("swarm has no participants")

	// ErrAlreadyStarted is returned by Start when the swarm is not idle.
	ErrAlreadyStarted = errors.New("swarm already started")
)

// State is the lifecycle position of a Swarm.
type State int

const (
	// StateIdle is a swarm that has not been started.
	StateIdle State = iota
	// StateRunning is a swarm whose run loops are active.
	StateRunning
	// StateStopping is a swarm inside its stop sequence.
	StateStopping
	// StateStopped is a swarm that has been torn down.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a Swarm.
type Options struct {
	// GracePeriod bounds how long Stop waits for run loops. Zero uses
	// DefaultGracePeriod.
	GracePeriod time.Duration

	// ObserverID is the bus address of the shutdown observer. It must not
	// collide with a participant id. Empty uses DefaultObserverID.
	ObserverID string

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// ParticipantStatus describes one participant.
type ParticipantStatus struct {
	ID      string
	Role    string
	Running bool
	Pending int
}

// Status is a snapshot of the swarm.
type Status struct {
	State        State
	Participants []ParticipantStatus
}

// Swarm runs participants on a shared bus.
type Swarm struct {
	bus          *bus.Bus
	participants []core.Participant
	opts         Options
	logger       logging.Logger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	exited    map[string]bool
	abandoned []string
	err       error

	loopsDone chan struct{}
	done      chan struct{}
}

// New creates a Swarm for participants on b. Participant ids must be
// non-empty and unique.
func New(b *bus.Bus, participants []core.Participant, optFns ...func(o *Options)) (*Swarm, error) {
	opts := Options{
		GracePeriod: DefaultGracePeriod,
		ObserverID:  DefaultObserverID,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.ObserverID == "" {
		opts.ObserverID = DefaultObserverID
	}

	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	seen := map[string]bool{opts.ObserverID: true}
	for _, p := range participants {
		if p.ID() == "" {
			return nil, core.ErrEmptyParticipantID
		}
		if seen[p.ID()] {
			return nil, fmt.Errorf("participant %q: %w", p.ID(), core.ErrDuplicateParticipant)
		}
		seen[p.ID()] = true
	}

	return &Swarm{
		bus:          b,
		participants: participants,
		opts:         opts,
		logger:       logging.With(opts.Logger, "component", "swarm"),
		exited:       make(map[string]bool, len(participants)),
		loopsDone:    make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start registers all participants and launches their run loops. If any
// registration fails the ones already made are rolled back.
func (s *Swarm) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}

	boxes := make([]*bus.Mailbox, 0, len(s.participants))
	for _, p := range s.participants {
		mb, err := s.bus.Register(p.ID())
		if err != nil {
			s.rollback(boxes)
			return fmt.Errorf("start swarm: %w", err)
		}
		boxes = append(boxes, mb)
	}
	observer, err := s.bus.Register(s.opts.ObserverID)
	if err != nil {
		s.rollback(boxes)
		return fmt.Errorf("start swarm: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	var g errgroup.Group
	for i, p := range s.participants {
		mb := boxes[i]
		g.Go(func() error { return s.runLoop(runCtx, p, mb) })
	}
	go func() {
		err := g.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.loopsDone)
	}()

	go s.observe(runCtx, observer)

	s.state = StateRunning
	s.logger.Info("swarm started", "participants", len(s.participants))
	return nil
}

func (s *Swarm) rollback(boxes []*bus.Mailbox) {
	for _, mb := range boxes {
		_ = s.bus.Deregister(mb.ID())
	}
}

func (s *Swarm) runLoop(ctx context.Context, p core.Participant, inbox core.Inbox) error {
	err := p.Run(ctx, inbox)

	s.mu.Lock()
	s.exited[p.ID()] = true
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("participant exited with error", "participant", p.ID(), "error", err)
		return fmt.Errorf("participant %q: %w", p.ID(), err)
	}
	s.logger.Debug("participant exited", "participant", p.ID())
	return nil
}

// observe waits for a shutdown broadcast or the end of ctx and stops the
// swarm either way.
func (s *Swarm) observe(ctx context.Context, inbox *bus.Mailbox) {
	for {
		msg, err := inbox.Receive(ctx)
		if err != nil {
			if errors.Is(err, core.ErrMailboxClosed) {
				return
			}
			s.logger.Info("context done, stopping swarm")
			break
		}
		if msg.Kind == core.KindShutdown {
			s.logger.Info("shutdown observed", "sender", msg.Sender)
			break
		}
	}
	_ = s.Stop(context.Background())
}

// Stop ends all run loops and deregisters every participant. It waits at most
// the grace period (or until ctx is done) for loops to return; loops still
// running afterwards are reported by Abandoned. A Stop that arrives while
// another is in progress waits for it to finish (or for ctx); calling Stop
// on a stopped swarm is a no-op.
func (s *Swarm) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateStopped
		close(s.done)
		s.mu.Unlock()
		return nil
	case StateStopping:
		s.mu.Unlock()
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	case StateStopped:
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.logger.Info("stopping swarm", "grace_period", s.opts.GracePeriod)
	s.cancel()

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-s.loopsDone:
	case <-timer.C:
	case <-ctx.Done():
	}

	s.mu.Lock()
	for _, p := range s.participants {
		if !s.exited[p.ID()] {
			s.abandoned = append(s.abandoned, p.ID())
		}
	}
	abandoned := s.abandoned
	s.mu.Unlock()

	if len(abandoned) > 0 {
		s.logger.Warn("participants abandoned after grace period", "participants", abandoned)
	}

	for _, p := range s.participants {
		if err := s.bus.Deregister(p.ID()); err != nil && !errors.Is(err, core.ErrUnknownParticipant) {
			s.logger.Warn("deregister failed", "participant", p.ID(), "error", err)
		}
	}
	_ = s.bus.Deregister(s.opts.ObserverID)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	close(s.done)

	s.logger.Info("swarm stopped")
	return nil
}

// Run starts the swarm and blocks until it has stopped. It returns the first
// error a run loop exited with, ignoring context cancellation and deadlines.
func (s *Swarm) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.done
	return s.Err()
}

// Done is closed once the stop sequence has completed.
func (s *Swarm) Done() <-chan struct{} { return s.done }

// Err returns the first non-cancellation error a run loop exited with.
func (s *Swarm) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *Swarm) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Abandoned lists participants whose loop had not returned when the grace
// period expired.
func (s *Swarm) Abandoned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.abandoned...)
}

// Bus returns the bus the swarm runs on.
func (s *Swarm) Bus() *bus.Bus { return s.bus }

// Status returns a snapshot of the swarm and its participants.
func (s *Swarm) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{State: s.state, Participants: make([]ParticipantStatus, 0, len(s.participants))}
	for _, p := range s.participants {
		ps := ParticipantStatus{
			ID:      p.ID(),
			Role:    p.Role(),
			Running: s.state != StateIdle && !s.exited[p.ID()],
		}
		if n, err := s.bus.Pending(p.ID()); err == nil {
			ps.Pending = n
		}
		status.Participants = append(status.Participants, ps)
	}
	return status
}
