package core

// Payload is the kind-specific body of a Message. Concrete payload types
// implement the unexported clone marker, which closes the set to this
// package and lets the bus hand every mailbox an independent copy. Use Data
// for extension kinds.
type Payload interface{ clone() Payload }

// UserRequest is sent by a front-end to the controller.
type UserRequest struct {
	Text string `json:"text"`
}

func (p UserRequest) clone() Payload { return p }

// TaskAssign is sent by the controller to a worker. Inputs carries upstream
// results the worker needs (for a reviewer: the coder outputs).
type TaskAssign struct {
	TaskID      string   `json:"task_id"`
	RequestID   string   `json:"request_id"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs,omitempty"`
}

func (p TaskAssign) clone() Payload {
	p.Inputs = cloneStrings(p.Inputs)
	return p
}

// TaskResult is a worker's answer to exactly one TaskAssign. TaskID echoes
// the assignment. Subtasks is filled by planners, Verdict by reviewers and
// Output by every role.
type TaskResult struct {
	TaskID    string   `json:"task_id"`
	RequestID string   `json:"request_id"`
	Role      string   `json:"role"`
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
	Output    string   `json:"output,omitempty"`
	Subtasks  []string `json:"subtasks,omitempty"`
	Verdict   string   `json:"verdict,omitempty"`
}

func (p TaskResult) clone() Payload {
	p.Subtasks = cloneStrings(p.Subtasks)
	return p
}

// UserOutput is sent by the controller to the originating front-end. Final
// marks the last output for a request; Failed marks a failure description.
type UserOutput struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Failed    bool   `json:"failed,omitempty"`
}

func (p UserOutput) clone() Payload { return p }

// TaskTimeout names an outstanding task whose answer deadline passed.
type TaskTimeout struct {
	TaskID string `json:"task_id"`
}

func (p TaskTimeout) clone() Payload { return p }

// Data is an untyped payload for extension kinds.
type Data map[string]any

func (p Data) clone() Payload {
	if p == nil {
		return Data(nil)
	}
	return Data(cloneMap(p))
}

// cloneMap copies m and every nested map or slice it holds. Other values
// are copied as they are.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case Data:
		if v == nil {
			return v
		}
		return Data(cloneMap(v))
	case map[string]any:
		if v == nil {
			return v
		}
		return cloneMap(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return cloneStrings(v)
	default:
		return v
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
