package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Prefix marks a tool call in a model reply.
const Prefix = "TOOL:"

var callPattern = regexp.MustCompile(`(?s)^([A-Za-z_][A-Za-z0-9_]*)\s*\((.*)\)$`)

// Call is a parsed TOOL:<name>(<args>) action. Args is the raw text between
// the outermost parentheses; each tool splits it in its own way.
type Call struct {
	Name string
	Args string
}

func (c Call) String() string {
	return Prefix + c.Name + "(" + c.Args + ")"
}

// ParseCall parses a tool call. The TOOL: prefix is optional.
func ParseCall(text string) (Call, error) {
	text = strings.TrimSpace(text)
	if len(text) >= len(Prefix) && strings.EqualFold(text[:len(Prefix)], Prefix) {
		text = strings.TrimSpace(text[len(Prefix):])
	}
	if text == "" {
		return Call{}, fmt.Errorf("%w: missing tool name", ErrInvalidFormat)
	}

	m := callPattern.FindStringSubmatch(text)
	if m == nil {
		return Call{}, fmt.Errorf("%w: expected name(args), got %q", ErrInvalidFormat, text)
	}

	return Call{Name: m[1], Args: m[2]}, nil
}

// splitFirst splits args at the first comma. ok is false when there is no comma.
func splitFirst(args string) (string, string, bool) {
	return strings.Cut(args, ",")
}

// splitLast splits args at the last comma. ok is false when there is no comma.
func splitLast(args string) (string, string, bool) {
	i := strings.LastIndex(args, ",")
	if i < 0 {
		return args, "", false
	}
	return args[:i], args[i+1:], true
}

// cleanArg trims whitespace and one level of matching quotes.
func cleanArg(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			if first == '"' {
				if unq, err := strconv.Unquote(s); err == nil {
					return unq
				}
			}
			return s[1 : len(s)-1]
		}
	}
	return s
}
