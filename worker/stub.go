package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentswarm/core"
)

// StubPlanner always splits a request into the same two subtasks.
func StubPlanner() Generator {
	return GeneratorFunc(func(_ context.Context, task core.TaskAssign) (core.TaskResult, error) {
		subtasks := []string{"Implement core logic", "Write tests"}
		return core.TaskResult{
			Subtasks: subtasks,
			Output:   fmt.Sprintf("Plan for %q:\n1. %s\n2. %s", task.Description, subtasks[0], subtasks[1]),
		}, nil
	})
}

// StubCoder returns placeholder code for the subtask.
func StubCoder() Generator {
	return GeneratorFunc(func(_ context.Context, task core.TaskAssign) (core.TaskResult, error) {
		code := fmt.Sprintf("# Stub implementation for: %s\nprint('Hello from %s')\n", task.Description, task.Description)
		return core.TaskResult{Output: code}, nil
	})
}

// StubReviewer approves everything.
func StubReviewer() Generator {
	return GeneratorFunc(func(_ context.Context, task core.TaskAssign) (core.TaskResult, error) {
		return core.TaskResult{
			Verdict: "LGTM",
			Output:  fmt.Sprintf("Reviewed %d item(s) for %s", len(task.Inputs), strings.TrimSpace(task.Description)),
		}, nil
	})
}
