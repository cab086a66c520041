package worker

import "github.com/hupe1980/agentswarm/core"

// Provider supplies dynamic instruction text for a task.
type Provider interface {
	Instruction(task core.TaskAssign) (string, error)
}

// ProviderFunc is a functional adapter to allow ordinary functions to be used as Providers.
type ProviderFunc func(task core.TaskAssign) (string, error)

// Instruction implements Provider.
func (f ProviderFunc) Instruction(task core.TaskAssign) (string, error) { return f(task) }

// Instruction represents either a static instruction template or a dynamic provider.
// Static text may reference task fields with text/template syntax, e.g. {{.Description}}.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(core.TaskAssign) (string, error)) Instruction {
	return Instruction{provider: ProviderFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(task core.TaskAssign) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(task)
	}
	return i.text, nil
}
