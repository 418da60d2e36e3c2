package agent

import (
	"errors"
	"regexp"
	"strings"

	"github.com/atinylittleshell/nlsh/internal/tools"
	"github.com/samber/lo"
)

// ErrOracleUnparseable means the model reply held no action after sanitizing.
var ErrOracleUnparseable = errors.New("model reply contained no action")

const (
	commandPrefix = "COMMAND:"
	donePrefix    = "DONE:"
	failedPrefix  = "FAILED:"
)

// Action is the single instruction the model proposes for one turn. It is
// one of RunCommand, ToolCall, Done or Failed.
type Action interface {
	// String is the form persisted in checkpoints and shown to the model.
	String() string
	isAction()
}

// RunCommand runs a raw shell command.
type RunCommand struct {
	Command string
}

// ToolCall invokes a registered tool. Err is set when the call text did not
// parse; such a call is recorded as a failed step without running anything.
type ToolCall struct {
	Raw  string
	Call tools.Call
	Err  error
}

// Done ends the session successfully.
type Done struct {
	Summary string
}

// Failed ends the session because the model gave up.
type Failed struct {
	Reason string
}

func (a RunCommand) String() string { return commandPrefix + " " + a.Command }
func (a ToolCall) String() string {
	if a.Err != nil {
		return a.Raw
	}
	return a.Call.String()
}
func (a Done) String() string   { return donePrefix + " " + a.Summary }
func (a Failed) String() string { return failedPrefix + " " + a.Reason }

func (RunCommand) isAction() {}
func (ToolCall) isAction()   {}
func (Done) isAction()       {}
func (Failed) isAction()     {}

var (
	thinkBlock    = regexp.MustCompile(`(?is)<(think|thinking)>.*?</(think|thinking)>`)
	closeThinkTag = regexp.MustCompile(`(?is)^.*</(think|thinking)>`)
	openThinkTag  = regexp.MustCompile(`(?is)<(think|thinking)>.*$`)
	strayThinkTag = regexp.MustCompile(`(?i)</?(think|thinking)>`)
)

// Sanitize strips reasoning blocks and code fences from a reply and returns
// its first non-blank line, or "" if nothing remains.
func Sanitize(reply string) string {
	reply = thinkBlock.ReplaceAllString(reply, "")
	// A closing tag left over has no opening tag: everything before it is reasoning.
	reply = closeThinkTag.ReplaceAllString(reply, "")
	reply = openThinkTag.ReplaceAllString(reply, "")
	reply = strayThinkTag.ReplaceAllString(reply, "")

	lines := lo.FilterMap(strings.Split(reply, "\n"), func(line string, _ int) (string, bool) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			return "", false
		}
		if len(line) > 1 && strings.HasPrefix(line, "`") && strings.HasSuffix(line, "`") {
			line = strings.TrimSpace(strings.Trim(line, "`"))
		}
		return line, line != ""
	})

	first, _ := lo.First(lines)
	return first
}

// ParseReply turns a raw model reply into exactly one Action. A line with no
// recognized prefix is treated as a raw command.
func ParseReply(reply string) (Action, error) {
	line := Sanitize(reply)
	if line == "" {
		return nil, ErrOracleUnparseable
	}

	if rest, ok := cutPrefixFold(line, commandPrefix); ok {
		if rest == "" {
			return nil, ErrOracleUnparseable
		}
		return RunCommand{Command: rest}, nil
	}
	if _, ok := cutPrefixFold(line, tools.Prefix); ok {
		call, err := tools.ParseCall(line)
		return ToolCall{Raw: line, Call: call, Err: err}, nil
	}
	if rest, ok := cutPrefixFold(line, donePrefix); ok {
		return Done{Summary: rest}, nil
	}
	if rest, ok := cutPrefixFold(line, failedPrefix); ok {
		return Failed{Reason: rest}, nil
	}

	return RunCommand{Command: line}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
