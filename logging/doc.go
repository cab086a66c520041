// Package logging provides a minimal logging interface and adapters for the swarm.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the bus, agents, controller and swarm use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - With for attaching attributes (participant, component) to any Logger
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LevelInfo, Format: "json"})
//	b := bus.New(func(o *bus.Options) { o.Logger = logger })
//
// Arguments after the message follow slog conventions: alternating keys and values.
package logging
