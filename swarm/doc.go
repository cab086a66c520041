// Package swarm manages the lifecycle of a set of participants sharing one
// bus.
//
// A Swarm registers every participant, launches each run loop on its own
// goroutine and owns a shutdown-observer mailbox. When a shutdown message is
// broadcast by anyone (or the parent context ends, or Stop is called), the
// Swarm runs a single stop sequence:
//
//  1. cancel the context passed to every run loop
//  2. wait for the loops to return, bounded by the grace period
//  3. record loops that did not return in time as abandoned
//  4. deregister every participant and the observer
//
// Stop is idempotent. Participants should request termination with
// agent.BaseAgent.RequestShutdown rather than calling Stop from inside a
// handler, which would wait on its own loop until the grace period expires.
package swarm
