// Package controller implements the participant that drives every user
// request through the fixed pipeline plan → code → review → respond.
//
// For each user_request the Controller creates a RequestState and walks it
// through the stages
//
//	planning → coding → review → done
//
// with failed reachable from any non-terminal stage. Stages only move
// forward and every request ends in exactly one terminal stage. Work is
// dispatched as task_assign messages; each dispatch is recorded as a
// TaskAssignment keyed by a fresh task id, and the matching task_result
// consumes it. Results whose task id is unknown (never issued, already
// answered, or belonging to a failed request) are logged and dropped.
//
// All state is owned by the Controller's run loop. Task deadlines are
// enforced by a timer that sends a task_timeout message to the Controller
// itself, so expiry is handled on the same goroutine as every other message.
package controller
