package testutil

import "github.com/hupe1980/agentswarm/core"

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	m := NewMessageBuilder().From("planner").To("controller").TaskResult(res).Build()
//
// Chain only the parts you need; the ID and timestamp are always fresh.
type MessageBuilder struct {
	sender    string
	recipient string
	kind      core.Kind
	payload   core.Payload
}

// NewMessageBuilder creates a builder with default sender "test".
func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{sender: "test"} }

// From sets the sender (chainable).
func (b *MessageBuilder) From(id string) *MessageBuilder { b.sender = id; return b }

// To sets the recipient (chainable). Leave unset for a broadcast.
func (b *MessageBuilder) To(id string) *MessageBuilder { b.recipient = id; return b }

// Kind sets an arbitrary kind and payload (chainable).
func (b *MessageBuilder) Kind(k core.Kind, p core.Payload) *MessageBuilder {
	b.kind, b.payload = k, p
	return b
}

// UserRequest sets a user_request payload (chainable).
func (b *MessageBuilder) UserRequest(text string) *MessageBuilder {
	return b.Kind(core.KindUserRequest, core.UserRequest{Text: text})
}

// TaskAssign sets a task_assign payload (chainable).
func (b *MessageBuilder) TaskAssign(p core.TaskAssign) *MessageBuilder {
	return b.Kind(core.KindTaskAssign, p)
}

// TaskResult sets a task_result payload (chainable).
func (b *MessageBuilder) TaskResult(p core.TaskResult) *MessageBuilder {
	return b.Kind(core.KindTaskResult, p)
}

// Shutdown sets the shutdown kind (chainable).
func (b *MessageBuilder) Shutdown() *MessageBuilder { return b.Kind(core.KindShutdown, nil) }

// Build returns the constructed message.
func (b *MessageBuilder) Build() core.Message {
	return core.NewMessage(b.sender, b.recipient, b.kind, b.payload)
}
