package bus

import (
	"context"
	"sync"

	"github.com/hupe1980/agentswarm/core"
)

// Mailbox is a FIFO queue of messages owned by exactly one participant.
// Enqueue is performed by the Bus; the owner consumes with Receive. It is
// safe for concurrent use.
type Mailbox struct {
	id       string
	capacity int // 0 = unbounded

	mu     sync.Mutex
	queue  []core.Message
	closed bool

	notify chan struct{} // wake token, buffered size 1
	done   chan struct{} // closed when the mailbox is closed
}

func newMailbox(id string, capacity int) *Mailbox {
	return &Mailbox{
		id:       id,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ID returns the identifier of the owning participant.
func (m *Mailbox) ID() string { return m.id }

// Len returns the number of queued, unconsumed messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Closed reports whether the mailbox has been closed by deregistration.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Receive returns the next message, blocking while the mailbox is empty.
// It returns core.ErrMailboxClosed once the mailbox is closed and ctx.Err()
// when ctx is done.
func (m *Mailbox) Receive(ctx context.Context) (core.Message, error) {
	for {
		if msg, ok, err := m.pop(); ok || err != nil {
			return msg, err
		}
		select {
		case <-m.notify:
		case <-m.done:
		case <-ctx.Done():
			return core.Message{}, ctx.Err()
		}
	}
}

// TryReceive returns the next message without blocking.
func (m *Mailbox) TryReceive() (core.Message, bool) {
	msg, ok, _ := m.pop()
	return msg, ok
}

func (m *Mailbox) pop() (core.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		if m.closed {
			return core.Message{}, false, core.ErrMailboxClosed
		}
		return core.Message{}, false, nil
	}
	msg := m.queue[0]
	m.queue[0] = core.Message{}
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		m.queue = nil
	} else {
		// pass the wake token on so another waiter sees the remaining messages
		m.signal()
	}
	return msg, true, nil
}

func (m *Mailbox) enqueue(msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrMailboxClosed
	}
	// the owner's messages to itself (timers) are never refused
	if m.capacity > 0 && len(m.queue) >= m.capacity && msg.Sender != m.id {
		return core.ErrMailboxFull
	}
	m.queue = append(m.queue, msg)
	m.signal()
	return nil
}

// signal must be called with mu held.
func (m *Mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// close discards pending messages, wakes any waiter and returns the number
// of discarded messages. Closing twice is a no-op.
func (m *Mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	m.closed = true
	discarded := len(m.queue)
	m.queue = nil
	close(m.done)
	return discarded
}
