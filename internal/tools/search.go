package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// MaxSearchMatches caps search output so it cannot flood the next prompt.
const MaxSearchMatches = 30

// SearchBackend represents the search implementation to use.
type SearchBackend int

const (
	SearchBackendAuto SearchBackend = iota
	SearchBackendRipgrep
	SearchBackendGrep
	SearchBackendNative
)

// excludeDirs are skipped by the grep and native backends.
// ripgrep honours .gitignore on its own.
var excludeDirs = []string{
	".git", ".svn", ".hg",
	"node_modules", ".venv", "venv", "__pycache__",
	"vendor", "target", "dist", ".cache", ".terraform",
}

// DetectSearchBackend picks the best available backend: rg > grep > native.
func DetectSearchBackend() SearchBackend {
	if _, err := exec.LookPath("rg"); err == nil {
		return SearchBackendRipgrep
	}
	if _, err := exec.LookPath("grep"); err == nil {
		return SearchBackendGrep
	}
	return SearchBackendNative
}

func (b SearchBackend) String() string {
	switch b {
	case SearchBackendAuto:
		return "auto"
	case SearchBackendRipgrep:
		return "rg"
	case SearchBackendGrep:
		return "grep"
	case SearchBackendNative:
		return "native"
	default:
		return "unknown"
	}
}

// SearchTool returns the search tool definition.
func SearchTool() *Definition {
	return &Definition{
		Name:        "search",
		Usage:       "search(pattern, dir)",
		Description: fmt.Sprintf("recursive text search from dir (defaults to the working directory), first %d matches", MaxSearchMatches),
		Execute:     executeSearch,
	}
}

func executeSearch(ctx context.Context, d *Dispatcher, args string) (string, error) {
	// The directory is whatever follows the last comma, so patterns may contain commas.
	rawPattern, rawDir, _ := splitLast(args)
	pattern := cleanArg(rawPattern)
	if pattern == "" {
		return "", fmt.Errorf("%w: search requires a pattern", ErrInvalidFormat)
	}

	dir := cleanArg(rawDir)
	root := d.resolve(dir)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		if dir == "" {
			dir = root
		}
		return "", fmt.Errorf("directory %w: %s", ErrNotFound, dir)
	}

	backend := d.search
	if backend == SearchBackendAuto {
		backend = DetectSearchBackend()
	}

	// Patterns that are not valid regular expressions are searched literally
	// by every backend.
	_, reErr := regexp.Compile(pattern)
	literal := reErr != nil

	matches, more, err := SearchWithBackend(ctx, backend, pattern, literal, root, MaxSearchMatches)
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return fmt.Sprintf("no matches for %q", pattern), nil
	}

	out := strings.Join(matches, "\n")
	if more {
		out += fmt.Sprintf("\n(showing first %d matches)", MaxSearchMatches)
	}
	return out, nil
}

// SearchWithBackend searches root for pattern and returns at most limit
// "file:line:text" matches. more reports whether matches were cut off.
// A literal pattern is matched as a fixed string.
func SearchWithBackend(ctx context.Context, backend SearchBackend, pattern string, literal bool, root string, limit int) (matches []string, more bool, err error) {
	switch backend {
	case SearchBackendRipgrep:
		args := []string{"-n", "--hidden", "--no-heading", "--color=never"}
		if literal {
			args = append(args, "-F")
		}
		args = append(args, "-e", pattern, ".")
		return searchExternal(ctx, root, limit, "rg", args...)
	case SearchBackendGrep:
		args := []string{"-rnI", "--color=never", "-E"}
		if literal {
			args[len(args)-1] = "-F"
		}
		for _, dir := range excludeDirs {
			args = append(args, "--exclude-dir="+dir)
		}
		args = append(args, "-e", pattern, ".")
		return searchExternal(ctx, root, limit, "grep", args...)
	case SearchBackendNative, SearchBackendAuto:
		return searchNative(ctx, pattern, literal, root, limit)
	default:
		return nil, false, fmt.Errorf("unknown search backend: %d", backend)
	}
}

func searchExternal(ctx context.Context, root string, limit int, name string, args ...string) ([]string, bool, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = root
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return nil, false, fmt.Errorf("%w: %s: %v", ErrExecution, name, err)
		}
		// Exit code 1 means no matches; 2+ is an actual error.
		if exitErr.ExitCode() > 1 {
			return nil, false, fmt.Errorf("%w: %s: %s", ErrExecution, name, strings.TrimSpace(stderr.String()))
		}
	}

	var matches []string
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(matches) == limit {
			return matches, true, nil
		}
		matches = append(matches, strings.TrimPrefix(scanner.Text(), "./"))
	}
	return matches, false, nil
}

// searchNative walks root in-process.
func searchNative(ctx context.Context, pattern string, literal bool, root string, limit int) ([]string, bool, error) {
	if literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}

	var matches []string
	more := false
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if path != root && isExcludedDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		found, stop := scanFile(path, rel, re, limit-len(matches))
		matches = append(matches, found...)
		if stop {
			more = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return nil, false, walkErr
	}

	return matches, more, nil
}

// scanFile returns up to budget matches from a file. stop is true when the
// file had more matches than budget allowed.
func scanFile(path, display string, re *regexp.Regexp, budget int) (found []string, stop bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	head, _ := reader.Peek(8000)
	if bytes.IndexByte(head, 0) >= 0 {
		// Binary file.
		return nil, false
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if len(found) == budget {
			return found, true
		}
		found = append(found, fmt.Sprintf("%s:%d:%s", filepath.ToSlash(display), lineNum, line))
	}
	return found, false
}

func isExcludedDir(name string) bool {
	return lo.Contains(excludeDirs, name)
}
