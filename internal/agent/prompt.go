package agent

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You are nlsh, an autonomous shell agent working toward a goal on the operator's machine.

Reply with exactly one line in one of these forms and nothing else:
COMMAND: <shell command> - run a command with bash -c in the working directory
%s
DONE: <summary> - the goal is accomplished
FAILED: <reason> - the goal cannot be accomplished

Rules:
- Propose one action per reply. No explanations, no markdown.
- Commands run non-interactively; never use commands that wait for input.
- Read the history before deciding; react to errors instead of repeating them.
- Prefer the tools for reading, writing and searching files.
- Destructive commands need the operator's confirmation and may be refused.
- Reply DONE as soon as the goal is met.`

// SystemPrompt returns the fixed operating rules followed by the tool catalog.
func SystemPrompt(catalog []string) string {
	return fmt.Sprintf(systemPromptTemplate, strings.Join(catalog, "\n"))
}

// UserPrompt describes the current state of the session.
func UserPrompt(s *Session, batchStep int, digest string) string {
	if digest == "" {
		digest = "(no steps yet)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n", s.Goal)
	fmt.Fprintf(&sb, "Working directory: %s\n", s.WorkDir)
	fmt.Fprintf(&sb, "Step: %d (%d of %d in this batch)\n\n", s.NextStep, batchStep, s.MaxSteps)
	sb.WriteString("History:\n")
	sb.WriteString(digest)
	sb.WriteString("\n\nReply with the next action.")
	return sb.String()
}
