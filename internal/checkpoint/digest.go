package checkpoint

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// History returns a digest of the newest maxSteps checkpoints, each reduced to
// its header line and the first outputLines lines of output. When older
// checkpoints exist the digest starts with a note naming how many were left out.
func (s *Store) History(maxSteps, outputLines int) (string, error) {
	steps, err := s.steps()
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		return "", nil
	}

	omitted := 0
	if maxSteps > 0 && len(steps) > maxSteps {
		omitted = len(steps) - maxSteps
		steps = steps[omitted:]
	}

	records, err := s.loadSteps(steps)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if omitted > 0 {
		fmt.Fprintf(&sb, "(%d earlier steps omitted)\n", omitted)
	}
	for _, rec := range records {
		sb.WriteString(Digest(rec, outputLines))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Digest renders a single record the way History does.
func Digest(rec Record, outputLines int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] (%s) %s\n", rec.Step, rec.Status, strings.ReplaceAll(rec.Action, "\n", " "))

	lines := lo.Filter(strings.Split(strings.TrimRight(rec.Output, "\n"), "\n"), func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})
	if outputLines < 0 {
		outputLines = 0
	}

	shown := lines
	if len(lines) > outputLines {
		shown = lines[:outputLines]
	}
	for _, line := range shown {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if rest := len(lines) - len(shown); rest > 0 {
		fmt.Fprintf(&sb, "    ... (%d more lines)\n", rest)
	}
	return sb.String()
}
