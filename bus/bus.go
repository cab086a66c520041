package bus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// Options configures a Bus.
type Options struct {
	// MailboxCapacity bounds every mailbox created by Register. Zero means
	// unbounded. Messages a participant sends to itself are not counted
	// against the bound.
	MailboxCapacity int

	// ExcludeSender skips the sender's own mailbox on Broadcast. The default
	// delivers broadcasts to every registered participant including the sender.
	ExcludeSender bool

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// Bus routes messages between registered participants. The registry is a
// single map guarded by one RWMutex; callers only ever see Mailbox handles.
type Bus struct {
	opts   Options
	logger logging.Logger

	mu        sync.RWMutex
	mailboxes map[string]*Mailbox
}

var _ core.Router = (*Bus)(nil)

// New creates an empty bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		opts:      opts,
		logger:    logging.With(opts.Logger, "component", "bus"),
		mailboxes: make(map[string]*Mailbox),
	}
}

// Register creates a fresh mailbox for id. It fails with
// core.ErrDuplicateParticipant if id is already registered.
func (b *Bus) Register(id string) (*Mailbox, error) {
	if id == "" {
		return nil, core.ErrEmptyParticipantID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.mailboxes[id]; exists {
		return nil, fmt.Errorf("register %q: %w", id, core.ErrDuplicateParticipant)
	}
	mb := newMailbox(id, b.opts.MailboxCapacity)
	b.mailboxes[id] = mb
	b.logger.Info("participant registered", "participant", id)
	return mb, nil
}

// Deregister removes the mailbox for id and discards any unconsumed messages.
// A consumer blocked in Receive is woken with core.ErrMailboxClosed.
func (b *Bus) Deregister(id string) error {
	b.mu.Lock()
	mb, exists := b.mailboxes[id]
	if exists {
		delete(b.mailboxes, id)
	}
	b.mu.Unlock()

	if !exists {
		return fmt.Errorf("deregister %q: %w", id, core.ErrUnknownParticipant)
	}

	if discarded := mb.close(); discarded > 0 {
		b.logger.Info("participant deregistered", "participant", id, "discarded", discarded)
	} else {
		b.logger.Info("participant deregistered", "participant", id)
	}
	return nil
}

// Send enqueues msg onto its recipient's mailbox. A message without a
// recipient is broadcast. Sending to an unregistered (or concurrently
// deregistered) identifier fails with core.ErrUnknownParticipant.
func (b *Bus) Send(msg core.Message) error {
	if msg.IsBroadcast() {
		return b.Broadcast(msg)
	}

	mb := b.lookup(msg.Recipient)
	if mb == nil {
		return fmt.Errorf("send %s to %q: %w", msg.Kind, msg.Recipient, core.ErrUnknownParticipant)
	}

	if err := mb.enqueue(msg.Clone()); err != nil {
		if errors.Is(err, core.ErrMailboxClosed) {
			return fmt.Errorf("send %s to %q: %w", msg.Kind, msg.Recipient, core.ErrUnknownParticipant)
		}
		return fmt.Errorf("send %s to %q: %w", msg.Kind, msg.Recipient, err)
	}

	b.logger.Debug("message delivered", "message_id", msg.ID, "kind", msg.Kind, "sender", msg.Sender, "recipient", msg.Recipient)
	return nil
}

// Broadcast enqueues an independent copy of msg onto every mailbox registered
// at call time (minus the sender when ExcludeSender is set). Mailboxes closed
// concurrently are skipped; other per-mailbox failures are joined and
// returned after every recipient has been attempted.
func (b *Bus) Broadcast(msg core.Message) error {
	b.mu.RLock()
	targets := make([]*Mailbox, 0, len(b.mailboxes))
	for id, mb := range b.mailboxes {
		if b.opts.ExcludeSender && id == msg.Sender {
			continue
		}
		targets = append(targets, mb)
	}
	b.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, mb := range targets {
		err := mb.enqueue(msg.Clone())
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, core.ErrMailboxClosed):
		default:
			errs = append(errs, fmt.Errorf("broadcast %s to %q: %w", msg.Kind, mb.ID(), err))
		}
	}

	b.logger.Debug("message broadcast", "message_id", msg.ID, "kind", msg.Kind, "sender", msg.Sender, "delivered", delivered)
	return errors.Join(errs...)
}

// Participants returns the registered identifiers in sorted order.
func (b *Bus) Participants() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsRegistered reports whether id currently owns a mailbox.
func (b *Bus) IsRegistered(id string) bool {
	return b.lookup(id) != nil
}

// Pending returns the number of unconsumed messages queued for id.
func (b *Bus) Pending(id string) (int, error) {
	mb := b.lookup(id)
	if mb == nil {
		return 0, fmt.Errorf("pending %q: %w", id, core.ErrUnknownParticipant)
	}
	return mb.Len(), nil
}

func (b *Bus) lookup(id string) *Mailbox {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mailboxes[id]
}
