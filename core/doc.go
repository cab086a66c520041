// Package core provides the foundational domain types and contracts shared by
// every swarm component. It defines:
//
//   - Messages (immutable units of communication with a kind and payload)
//   - Payloads (a closed set of kind-specific value types)
//   - Participants (runnable units that own one inbox)
//   - Routers and Inboxes (the sending and receiving halves of the bus)
//   - Sentinel routing errors
//
// The package keeps concrete behaviour (routing, run loops, orchestration)
// out of scope so that the bus, agents, controller and swarm can depend on
// small interfaces without import cycles.
package core
