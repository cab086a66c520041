// Package worker implements the planner, coder and reviewer roles as
// interchangeable participants.
//
// A role is defined purely by its message contract: for every task_assign a
// Worker receives it replies with exactly one task_result carrying the same
// TaskID, addressed to the assignment's sender. What the worker produces is
// delegated to a Generator, so stub, model-backed or custom behaviour can be
// swapped without touching orchestration.
package worker
