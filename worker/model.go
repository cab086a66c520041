package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/internal/util"
	"github.com/hupe1980/agentswarm/model"
)

var defaultInstructions = map[string]string{
	RolePlanner: "You are a planning specialist. Break the user's request into a short list of " +
		"independent coding subtasks. Reply with one subtask per line and nothing else.",
	RoleCoder: "You are a coding specialist. Implement exactly the subtask you are given. " +
		"Reply with the code and brief comments only.",
	RoleReviewer: "You are a code reviewer. Start your reply with a one-line verdict " +
		"(LGTM or CHANGES REQUESTED), then list any issues.",
}

var defaultPrompts = map[string]string{
	RoleReviewer: "{{.Description}}\n\n{{range .Inputs}}{{.}}\n\n{{end}}",
}

const fallbackPrompt = "{{.Description}}"

// ModelGeneratorOptions configures a ModelGenerator.
type ModelGeneratorOptions struct {
	// Instruction overrides the role's default system instruction.
	Instruction Instruction

	// Prompt is a text/template rendered against the core.TaskAssign.
	Prompt string

	// Stream requests streaming generation from the model.
	Stream bool
}

// ModelGenerator produces task results by prompting a model.Model.
type ModelGenerator struct {
	role  string
	model model.Model
	opts  ModelGeneratorOptions
}

var _ Generator = (*ModelGenerator)(nil)

// NewModelGenerator creates a generator for role backed by m.
func NewModelGenerator(role string, m model.Model, optFns ...func(o *ModelGeneratorOptions)) *ModelGenerator {
	opts := ModelGeneratorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Instruction.IsZero() {
		opts.Instruction = NewInstructionFromText(defaultInstructions[role])
	}
	if opts.Prompt == "" {
		opts.Prompt = fallbackPrompt
		if p, ok := defaultPrompts[role]; ok {
			opts.Prompt = p
		}
	}
	return &ModelGenerator{role: role, model: m, opts: opts}
}

// Generate implements Generator. Planner output is returned as text for the
// controller to split; reviewer verdicts are taken from the first line.
func (g *ModelGenerator) Generate(ctx context.Context, task core.TaskAssign) (core.TaskResult, error) {
	instruction, err := g.opts.Instruction.Resolve(task)
	if err != nil {
		return core.TaskResult{}, fmt.Errorf("resolve instruction: %w", err)
	}
	instruction, err = util.RenderTemplate(instruction, task)
	if err != nil {
		return core.TaskResult{}, fmt.Errorf("render instruction: %w", err)
	}
	prompt, err := util.RenderTemplate(g.opts.Prompt, task)
	if err != nil {
		return core.TaskResult{}, fmt.Errorf("render prompt: %w", err)
	}

	text, err := model.Collect(ctx, g.model, model.Request{
		Instructions: instruction,
		Prompt:       prompt,
		Stream:       g.opts.Stream,
	})
	if err != nil {
		info := g.model.Info()
		return core.TaskResult{}, fmt.Errorf("%s/%s: %w", info.Provider, info.Name, err)
	}

	result := core.TaskResult{Output: text}
	if g.role == RoleReviewer {
		result.Verdict = firstLine(text)
	}
	return result, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
