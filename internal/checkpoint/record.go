package checkpoint

import (
	"errors"
	"time"
)

var (
	// ErrNoSession is returned by ReadSession when no goal has been persisted.
	ErrNoSession = errors.New("no persisted session")

	// ErrStepExists is returned when saving a step index that is already on disk.
	ErrStepExists = errors.New("checkpoint already exists")
)

// Status is the outcome tag of a checkpoint.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
	StatusAborted Status = "aborted"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// StatusForExit maps a process exit code to ok or error.
func StatusForExit(exitCode int) Status {
	if exitCode == 0 {
		return StatusOK
	}
	return StatusError
}

// Record is one immutable step of a session.
type Record struct {
	Step       int       `json:"step"`
	Timestamp  time.Time `json:"timestamp"`
	WorkDir    string    `json:"work_dir"`
	Action     string    `json:"action"`
	Status     Status    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	OutputFile string    `json:"output_file"`

	// Output is filled in by Load from OutputFile.
	Output string `json:"-"`
}

// Session is the persisted identity of an agent run.
type Session struct {
	ID   string
	Goal string
	Mode string
}
