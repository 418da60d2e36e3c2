// Package risk classifies shell commands by destructive intent. It is the only
// place where the risky pattern set lives: the agent step executor and the
// single-shot suggest command both call IsRisky.
package risk

import (
	"regexp"
)

// cmdStart anchors a pattern at a command position: the start of the line or
// right after a separator, with optional leading VAR=value assignments.
const cmdStart = `(?:^|[;&|(\x60]|\$\()\s*(?:[A-Za-z_][A-Za-z0-9_]*=\S*\s+)*`

type rule struct {
	name string
	re   *regexp.Regexp
}

var rules = []rule{
	{"privilege escalation", regexp.MustCompile(`(?i)` + cmdStart + `(?:sudo|su|doas|pkexec)\b`)},
	{"file deletion", regexp.MustCompile(`(?i)` + cmdStart + `(?:rm|rmdir|unlink|shred|srm|wipe)\b`)},
	{"disk formatting", regexp.MustCompile(`(?i)` + cmdStart + `(?:dd|mkfs(?:\.\w+)?|fdisk|sfdisk|parted|wipefs|mkswap)\b`)},
	{"find with delete", regexp.MustCompile(`(?i)\bfind\b.*\s-(?:exec|execdir|ok)\s+(?:\S*/)?(?:rm|shred|unlink|srm)\b`)},
	{"find with delete", regexp.MustCompile(`(?i)\bfind\b.*\s-delete\b`)},
	{"bulk delete", regexp.MustCompile(`(?i)\bxargs\b(?:\s+-\S+)*\s+(?:\S*/)?(?:rm|shred|unlink)\b`)},
	{"cluster delete", regexp.MustCompile(`(?i)\bkubectl\b.*\s(?:delete|drain)\b`)},
	{"cluster delete", regexp.MustCompile(`(?i)\bhelm\s+(?:uninstall|delete)\b`)},
	{"infrastructure destroy", regexp.MustCompile(`(?i)\b(?:terraform|tofu|pulumi)\s+(?:.*\s)?destroy\b`)},
	{"infrastructure destroy", regexp.MustCompile(`(?i)\b(?:terraform|tofu)\s+apply\b.*\s-destroy\b`)},
	{"cloud resource delete", regexp.MustCompile(`(?i)\baws\s+\S+\s+(?:delete|terminate|remove|deregister)-\S*`)},
	{"cloud resource delete", regexp.MustCompile(`(?i)\baws\s+s3\s+(?:rb|rm)\b`)},
	{"cloud resource delete", regexp.MustCompile(`(?i)\bgcloud\b.*\s(?:delete|remove)\b`)},
	{"cloud resource delete", regexp.MustCompile(`(?i)\baz\b.*\sdelete\b`)},
	{"container delete", regexp.MustCompile(`(?i)\b(?:docker|podman)\s+(?:rm|rmi|(?:system|volume|image|container|network)\s+(?:prune|rm))\b`)},
	{"history rewrite", regexp.MustCompile(`(?i)\bgit\s+push\b.*\s(?:--force(?:-with-lease)?|-f)\b`)},
	{"history rewrite", regexp.MustCompile(`(?i)\bgit\s+reset\s+--hard\b`)},
	{"untracked file delete", regexp.MustCompile(`(?i)\bgit\s+clean\b.*\s-\w*f`)},
	{"recursive permission change", regexp.MustCompile(`(?i)\bch(?:mod|own|grp)\s+(?:-\S+\s+)*-R\s+\S+\s+/(?:\s|$)`)},
	{"raw device write", regexp.MustCompile(`(?i)>\s*/dev/(?:sd|nvme|hd|disk|mmcblk|vd|xvd)`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`)},
}

// IsRisky reports whether command matches any destructive-intent pattern.
func IsRisky(command string) bool {
	_, ok := Match(command)
	return ok
}

// Match returns the name of the first rule command matches. The pattern
// table is checked first; programs hidden behind paths, escapes, keywords or
// wrappers are caught by classifying each parsed simple command.
func Match(command string) (string, bool) {
	for _, r := range rules {
		if r.re.MatchString(command) {
			return r.name, true
		}
	}
	return matchCommands(command)
}
