package core

import "context"

// Inbox is the receiving half of a participant's mailbox.
type Inbox interface {
	// Receive blocks until a message is available, the mailbox is closed
	// (ErrMailboxClosed) or ctx is done.
	Receive(ctx context.Context) (Message, error)
}

// Router is the sending half of the message bus.
//
// Send delivers a directed message to its recipient; Broadcast delivers a
// copy to every registered participant. Neither blocks beyond the time
// needed to enqueue.
type Router interface {
	Send(msg Message) error
	Broadcast(msg Message) error
}

// Participant is any runnable unit with its own mailbox: the controller,
// workers and front-end bridges.
//
// Implementations must:
//   - Process messages from the inbox strictly one at a time
//   - Return from Run after observing a KindShutdown message
//   - Return from Run when ctx is cancelled or the inbox is closed
//   - Contain per-message failures instead of returning them
type Participant interface {
	ID() string
	Role() string
	Run(ctx context.Context, inbox Inbox) error
}
