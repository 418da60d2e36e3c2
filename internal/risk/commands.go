package risk

import (
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// commandRules classifies the program a simple command runs, wherever it
// sits in the script and however its name is spelled.
var commandRules = map[string]string{
	"sudo":   "privilege escalation",
	"su":     "privilege escalation",
	"doas":   "privilege escalation",
	"pkexec": "privilege escalation",

	"rm":     "file deletion",
	"rmdir":  "file deletion",
	"unlink": "file deletion",
	"shred":  "file deletion",
	"srm":    "file deletion",
	"wipe":   "file deletion",

	"dd":     "disk formatting",
	"mkfs":   "disk formatting",
	"fdisk":  "disk formatting",
	"sfdisk": "disk formatting",
	"parted": "disk formatting",
	"wipefs": "disk formatting",
	"mkswap": "disk formatting",
}

// wrappers run their arguments as another command.
var wrappers = map[string]bool{
	"command": true,
	"builtin": true,
	"env":     true,
	"exec":    true,
	"nohup":   true,
	"nice":    true,
	"ionice":  true,
	"time":    true,
	"timeout": true,
	"stdbuf":  true,
	"xargs":   true,
}

// matchCommands parses command as bash and classifies every program it
// would run. Unparseable input yields no match.
func matchCommands(command string) (string, bool) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return "", false
	}

	var name string
	syntax.Walk(file, func(node syntax.Node) bool {
		if name != "" {
			return false
		}
		if call, ok := node.(*syntax.CallExpr); ok {
			if rule, ok := classifyCall(call.Args); ok {
				name = rule
				return false
			}
		}
		return true
	})
	return name, name != ""
}

func classifyCall(args []*syntax.Word) (string, bool) {
	wrapped := false
	for _, word := range args {
		text := wordText(word)
		if wrapped && isWrapperArg(text) {
			continue
		}

		program := strings.ToLower(path.Base(text))
		if wrappers[program] {
			wrapped = true
			continue
		}
		if strings.HasPrefix(program, "mkfs.") {
			program = "mkfs"
		}
		rule, ok := commandRules[program]
		return rule, ok
	}
	return "", false
}

// isWrapperArg reports whether a word after a wrapper is one of its own
// options or settings rather than the wrapped program.
func isWrapperArg(text string) bool {
	if text == "" || strings.HasPrefix(text, "-") || strings.Contains(text, "=") {
		return true
	}
	// durations and priorities, e.g. "timeout 5s" or "nice 10"
	return text[0] >= '0' && text[0] <= '9'
}

// wordText returns the literal value of word with quoting and escapes
// removed. Parts that expand at run time are dropped.
func wordText(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(strings.ReplaceAll(p.Value, `\`, ""))
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}
