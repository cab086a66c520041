// Package bus implements the in-process message bus. The bus owns one
// Mailbox per registered participant and routes directed and broadcast
// messages into them.
//
// Guarantees:
//   - FIFO per mailbox: messages are received in the order they were enqueued
//   - No duplication: each accepted message is enqueued at most once per mailbox
//   - No silent loss: a message accepted by Send/Broadcast is either received
//     or explicitly discarded when its mailbox is deregistered
//   - Broadcasts snapshot the registry at call time; later registrations do
//     not receive them
//
// Sends never block beyond the time needed to enqueue. A bounded mailbox that
// is full rejects the message with core.ErrMailboxFull.
package bus
