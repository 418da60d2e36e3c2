// Package checkpoint persists agent sessions as a directory of append-only
// step records. The highest step index on disk is the resume point.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	goalFile      = "goal"
	modeFile      = "mode"
	sessionIDFile = "session_id"
	logFile       = "session.log"
	checkpointDir = "checkpoints"
)

var recordName = regexp.MustCompile(`^step_(\d+)\.json$`)

// timeNow is a variable that can be overridden for testing.
var timeNow = time.Now

// Store reads and writes one session directory. It assumes a single writer.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. Nothing is created until the first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the session directory.
func (s *Store) Dir() string {
	return s.dir
}

// LogPath returns the path of the cumulative session log.
func (s *Store) LogPath() string {
	return filepath.Join(s.dir, logFile)
}

func (s *Store) checkpointsDir() string {
	return filepath.Join(s.dir, checkpointDir)
}

func (s *Store) recordPath(step int) string {
	return filepath.Join(s.checkpointsDir(), fmt.Sprintf("step_%04d.json", step))
}

func outputName(step int) string {
	return fmt.Sprintf("step_%04d.out", step)
}

// Reset removes the whole session directory.
func (s *Store) Reset() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// WriteSession persists the goal, mode and id of a fresh session.
func (s *Store) WriteSession(meta Session) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	files := map[string]string{
		goalFile:      meta.Goal,
		modeFile:      meta.Mode,
		sessionIDFile: meta.ID,
	}
	for name, content := range files {
		if err := writeFileAtomic(filepath.Join(s.dir, name), []byte(content+"\n")); err != nil {
			return fmt.Errorf("failed to persist session %s: %w", name, err)
		}
	}
	return nil
}

// ReadSession loads the persisted session. It returns ErrNoSession when no
// goal has been written.
func (s *Store) ReadSession() (*Session, error) {
	goal, err := os.ReadFile(filepath.Join(s.dir, goalFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session goal: %w", err)
	}

	meta := &Session{Goal: strings.TrimSpace(string(goal))}
	if meta.Goal == "" {
		return nil, ErrNoSession
	}

	if mode, err := os.ReadFile(filepath.Join(s.dir, modeFile)); err == nil {
		meta.Mode = strings.TrimSpace(string(mode))
	}
	if id, err := os.ReadFile(filepath.Join(s.dir, sessionIDFile)); err == nil {
		meta.ID = strings.TrimSpace(string(id))
	}

	return meta, nil
}

// Save writes one checkpoint: the raw output blob, the JSON record and a
// line in the session log. The record file is written last and atomically,
// so a step exists exactly when its record does.
func (s *Store) Save(rec Record, output string) error {
	if rec.Step < 1 {
		return fmt.Errorf("invalid checkpoint step %d", rec.Step)
	}
	if err := os.MkdirAll(s.checkpointsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	path := s.recordPath(rec.Step)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: step %d", ErrStepExists, rec.Step)
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = timeNow()
	}
	rec.OutputFile = outputName(rec.Step)

	if err := os.WriteFile(filepath.Join(s.checkpointsDir(), rec.OutputFile), []byte(output), 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint output: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	return s.appendLog(rec)
}

func (s *Store) appendLog(rec Record) error {
	f, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	defer f.Close()

	action := strings.ReplaceAll(rec.Action, "\n", " ")
	if _, err := fmt.Fprintf(f, "[%d] (%s) %s\n", rec.Step, rec.Status, action); err != nil {
		return fmt.Errorf("failed to append session log: %w", err)
	}
	return nil
}

// steps returns the persisted step indices in ascending order.
func (s *Store) steps() ([]int, error) {
	entries, err := os.ReadDir(s.checkpointsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var steps []int
	for _, entry := range entries {
		m := recordName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		step, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// LatestCompletedStep returns the highest persisted step, or 0 if there is none.
func (s *Store) LatestCompletedStep() (int, error) {
	steps, err := s.steps()
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, nil
	}
	return steps[len(steps)-1], nil
}

// Load reads one checkpoint including its output.
func (s *Store) Load(step int) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(step))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %d: %w", step, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %d: %w", step, err)
	}

	if rec.OutputFile != "" {
		output, err := os.ReadFile(filepath.Join(s.checkpointsDir(), rec.OutputFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read checkpoint %d output: %w", step, err)
		}
		rec.Output = string(output)
	}

	return &rec, nil
}

// Records returns every checkpoint in step order.
func (s *Store) Records() ([]Record, error) {
	steps, err := s.steps()
	if err != nil {
		return nil, err
	}
	return s.loadSteps(steps)
}

func (s *Store) loadSteps(steps []int) ([]Record, error) {
	records := make([]Record, 0, len(steps))
	for _, step := range steps {
		rec, err := s.Load(step)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
