package tools

import "errors"

var (
	// ErrInvalidFormat is returned for action text that does not follow name(args).
	ErrInvalidFormat = errors.New("invalid tool call format")

	// ErrUnknownTool is returned when no tool is registered under the requested name.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrNotFound is returned when a file or directory argument does not exist.
	ErrNotFound = errors.New("not found")

	// ErrFetchUnavailable is returned by web_fetch when no fetcher is configured.
	ErrFetchUnavailable = errors.New("web fetch unavailable")

	// ErrExecution is returned when a tool or command ran but failed.
	ErrExecution = errors.New("execution failed")
)

// exitCodeFor maps a tool error to the status reported back to the agent.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidFormat):
		return 2
	case errors.Is(err, ErrUnknownTool):
		return 127
	default:
		return 1
	}
}
