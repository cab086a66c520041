// Package agent contains the execution contract shared by every swarm
// participant. It focuses on three concerns:
//
//  1. The serial run loop (BaseAgent.Serve) that takes one message at a time
//     from a participant's inbox and hands it to a handler
//  2. Fault isolation: errors returned by, and panics raised in, a handler are
//     contained and recorded; the loop keeps going
//  3. Messaging helpers (Send, Broadcast, RequestShutdown) that stamp the
//     participant's identifier as sender and delegate to the bus
//
// Execution model:
//   - Serve returns nil after a shutdown message or mailbox closure, and
//     ctx.Err() when its context is cancelled
//   - A message already pulled from the inbox is handled to completion;
//     handlers are never interrupted mid-flight
//   - Handlers must log-and-ignore kinds they do not recognize (see Ignore)
//
// Concrete participants embed *BaseAgent and implement Run by calling Serve
// with their own handler.
package agent
