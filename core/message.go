package core

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the semantic category of a Message. The core kinds are
// declared as constants; the type stays open so deployments can add kinds
// without touching the bus. Participants must treat unknown kinds as
// ignorable (log and continue).
type Kind string

const (
	// KindUserRequest carries a request from a front-end to the controller.
	KindUserRequest Kind = "user_request"
	// KindTaskAssign carries a unit of work from the controller to a worker.
	KindTaskAssign Kind = "task_assign"
	// KindTaskResult carries a worker's answer back to the controller.
	KindTaskResult Kind = "task_result"
	// KindUserOutput carries a response (or progress) to a front-end.
	KindUserOutput Kind = "user_output"
	// KindShutdown is the cooperative termination signal; always broadcast.
	KindShutdown Kind = "shutdown"
	// KindTaskTimeout is sent by the controller to itself when a dispatched
	// task has not been answered in time.
	KindTaskTimeout Kind = "task_timeout"
)

// Known reports whether k is one of the kinds declared by this package.
func (k Kind) Known() bool {
	switch k {
	case KindUserRequest, KindTaskAssign, KindTaskResult, KindUserOutput, KindShutdown, KindTaskTimeout:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Message is the unit of communication between participants. It is a value
// type: all fields are fixed at construction by NewMessage and every mailbox
// receives its own copy (see Clone). Recipient is empty for broadcasts.
type Message struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Payload   Payload   `json:"payload,omitempty"`
}

// NewMessage creates a message with a fresh identifier and UTC timestamp.
// An empty recipient marks the message as a broadcast.
func NewMessage(sender, recipient string, kind Kind, payload Payload) Message {
	return Message{
		ID:        NewID(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Payload:   clonePayload(payload),
	}
}

// NewID generates a new process-unique identifier for messages, requests
// and tasks.
func NewID() string { return uuid.NewString() }

// IsBroadcast reports whether the message has no specific recipient.
func (m Message) IsBroadcast() bool { return m.Recipient == "" }

// Clone returns a copy of m whose payload shares no mutable state with m.
func (m Message) Clone() Message {
	m.Payload = clonePayload(m.Payload)
	return m
}

// UserRequest returns the payload as a UserRequest.
func (m Message) UserRequest() (UserRequest, bool) {
	p, ok := m.Payload.(UserRequest)
	return p, ok
}

// TaskAssign returns the payload as a TaskAssign.
func (m Message) TaskAssign() (TaskAssign, bool) {
	p, ok := m.Payload.(TaskAssign)
	return p, ok
}

// TaskResult returns the payload as a TaskResult.
func (m Message) TaskResult() (TaskResult, bool) {
	p, ok := m.Payload.(TaskResult)
	return p, ok
}

// UserOutput returns the payload as a UserOutput.
func (m Message) UserOutput() (UserOutput, bool) {
	p, ok := m.Payload.(UserOutput)
	return p, ok
}

// TaskTimeout returns the payload as a TaskTimeout.
func (m Message) TaskTimeout() (TaskTimeout, bool) {
	p, ok := m.Payload.(TaskTimeout)
	return p, ok
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	return p.clone()
}
