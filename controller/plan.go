package controller

import (
	"fmt"
	"regexp"
	"strings"
)

var listItem = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// SplitPlan turns free-form planner output into subtasks. When any line is a
// list item (bullet or numbered) only list items are kept; otherwise every
// non-empty line is a subtask.
func SplitPlan(text string) []string {
	var items, lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
		if listItem.MatchString(line) {
			if item := strings.TrimSpace(listItem.ReplaceAllString(line, "")); item != "" {
				items = append(items, item)
			}
		}
	}
	if len(items) > 0 {
		return items
	}
	return lines
}

func composeReviewInputs(state *RequestState) []string {
	inputs := make([]string, len(state.Subtasks))
	for i, subtask := range state.Subtasks {
		inputs[i] = fmt.Sprintf("## %d. %s\n%s", i+1, subtask, strings.TrimSpace(state.Results[i]))
	}
	return inputs
}

func composeAnswer(state *RequestState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completed request: %s\n", state.Text)
	for _, section := range composeReviewInputs(state) {
		b.WriteString("\n")
		b.WriteString(section)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nReview verdict: %s", state.Verdict)
	if notes := strings.TrimSpace(state.Review); notes != "" && notes != state.Verdict {
		fmt.Fprintf(&b, "\n%s", notes)
	}
	return b.String()
}
