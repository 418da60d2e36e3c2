// Package tools implements the small tool surface the agent can call through
// TOOL:<name>(<args>) actions: reading, writing, searching, fetching and
// listing. Failures never escape as panics; they come back as a Result with
// a non-zero exit code so the agent can react in its next turn.
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
)

// ExecuteFunc runs a tool with its raw argument text.
type ExecuteFunc func(ctx context.Context, d *Dispatcher, args string) (string, error)

// Definition describes a tool exposed to the model.
type Definition struct {
	Name string
	// Usage is the one-line grammar shown to the model, e.g. "read_file(path)".
	Usage       string
	Description string
	// ArgsOptional allows an empty argument list.
	ArgsOptional bool
	Execute      ExecuteFunc
}

// Result is the outcome of a dispatched tool call.
type Result struct {
	Output   string
	ExitCode int
	Err      error
}

// Dispatcher resolves tool calls against a registry and a working directory.
type Dispatcher struct {
	workDir string
	fetcher Fetcher
	search  SearchBackend
	tools   map[string]*Definition
	logger  *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFetcher enables web_fetch. Without a fetcher web_fetch reports ErrFetchUnavailable.
func WithFetcher(f Fetcher) Option {
	return func(d *Dispatcher) { d.fetcher = f }
}

// WithSearchBackend pins the search backend instead of detecting one.
func WithSearchBackend(b SearchBackend) Option {
	return func(d *Dispatcher) { d.search = b }
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher creates a dispatcher with the default tools registered.
func NewDispatcher(workDir string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workDir: workDir,
		search:  SearchBackendAuto,
		tools:   make(map[string]*Definition),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Register(ReadFileTool())
	d.Register(WriteFileTool())
	d.Register(SearchTool())
	d.Register(WebFetchTool())
	d.Register(ListDirTool())

	return d
}

// Register adds or replaces a tool.
func (d *Dispatcher) Register(def *Definition) {
	d.tools[def.Name] = def
}

// WorkDir returns the directory relative paths are resolved against.
func (d *Dispatcher) WorkDir() string {
	return d.workDir
}

// Names returns the registered tool names in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns one line per tool: the exact grammar and a short description.
func (d *Dispatcher) Catalog() []string {
	lines := make([]string, 0, len(d.tools))
	for _, name := range d.Names() {
		def := d.tools[name]
		lines = append(lines, fmt.Sprintf("%s%s - %s", Prefix, def.Usage, def.Description))
	}
	return lines
}

// Dispatch parses action text and runs the tool it names.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) *Result {
	call, err := ParseCall(text)
	if err != nil {
		return d.failure(text, err)
	}
	return d.Run(ctx, call)
}

// Run executes an already parsed call.
func (d *Dispatcher) Run(ctx context.Context, call Call) *Result {
	def, ok := d.tools[call.Name]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		if hint := d.suggest(call.Name); hint != "" {
			err = fmt.Errorf("%w (did you mean %s?)", err, hint)
		}
		return d.failure(call.String(), err)
	}

	if strings.TrimSpace(call.Args) == "" && !def.ArgsOptional {
		return d.failure(call.String(), fmt.Errorf("%w: %s requires arguments: %s", ErrInvalidFormat, def.Name, def.Usage))
	}

	output, err := def.Execute(ctx, d, call.Args)
	if err != nil {
		return d.failure(call.String(), err)
	}

	d.logger.Debug("tool succeeded", zap.String("tool", call.Name), zap.Int("outputLen", len(output)))
	return &Result{Output: output}
}

func (d *Dispatcher) failure(action string, err error) *Result {
	d.logger.Warn("tool failed", zap.String("action", action), zap.Error(err))
	return &Result{
		Output:   fmt.Sprintf("error: %v", err),
		ExitCode: exitCodeFor(err),
		Err:      err,
	}
}

// suggest returns the closest registered tool name, if any.
func (d *Dispatcher) suggest(name string) string {
	matches := fuzzy.Find(name, d.Names())
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// resolve makes path absolute relative to the working directory.
func (d *Dispatcher) resolve(path string) string {
	if path == "" {
		return d.workDir
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := userHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(d.workDir, path)
}
