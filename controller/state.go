package controller

import (
	"time"

	"github.com/hupe1980/agentswarm/worker"
)

// RequestState is the per-request pipeline record. It is owned by the
// Controller's run loop and never shared.
type RequestState struct {
	ID        string
	Origin    string // participant to answer
	Text      string
	Stage     Stage
	Plan      string
	Subtasks  []string
	Completed int
	Results   []string // coder outputs, indexed like Subtasks
	Verdict   string
	Review    string
	StartedAt time.Time

	outstanding map[string]struct{}
}

// TaskAssignment correlates an outstanding task with its request.
type TaskAssignment struct {
	TaskID       string
	RequestID    string
	Worker       string
	Role         string
	Stage        Stage
	Index        int // subtask index for coder tasks, -1 otherwise
	DispatchedAt time.Time

	timer *time.Timer
}

func (t *TaskAssignment) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Transition describes one stage change of a request.
type Transition struct {
	RequestID string
	Origin    string
	Request   string
	From      Stage
	To        Stage
	Reason    string
	At        time.Time
}

// Outcome describes a request that reached a terminal stage, together with
// the final output sent for it.
type Outcome struct {
	RequestID string
	Origin    string
	Request   string
	Stage     Stage
	Subtasks  []string
	Answer    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Stats is a point-in-time summary safe to read from any goroutine.
type Stats struct {
	InFlight    int64 // requests not yet terminal
	Outstanding int64 // tasks awaiting a result
	Completed   int64 // requests that reached done
	Failed      int64 // requests that reached failed
}

// Roster names the workers the Controller dispatches to.
type Roster struct {
	Planner  string
	Coders   []string
	Reviewer string
}

// DefaultRoster uses one worker per role, named after the role.
func DefaultRoster() Roster {
	return Roster{
		Planner:  worker.RolePlanner,
		Coders:   []string{worker.RoleCoder},
		Reviewer: worker.RoleReviewer,
	}
}
