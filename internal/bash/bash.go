// Package bash runs shell commands for nlsh: agent commands are captured
// through a PTY, while commands the operator accepts in suggest mode run in
// an in-process mvdan/sh interpreter attached to the terminal.
package bash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// CheckSyntax parses command as bash and reports syntax errors without running it.
func CheckSyntax(command string) error {
	_, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return fmt.Errorf("failed to parse bash command: %w", err)
	}
	return nil
}

// interruptGrace is how long an interrupted program gets before it is killed.
const interruptGrace = 2 * time.Second

// RunInteractive runs command in dir with the given stdio.
// A non-zero exit code is NOT treated as an error - check the exit code separately.
func RunInteractive(ctx context.Context, dir, command string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return 1, fmt.Errorf("failed to parse bash command: %w", err)
	}

	runner, err := interp.New(
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.Dir(dir),
		interp.StdIO(stdin, stdout, stderr),
		interp.ExecHandlers(func(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return foregroundExecHandler(interruptGrace)
		}),
	)
	if err != nil {
		return 1, fmt.Errorf("failed to create bash runner: %w", err)
	}

	err = runner.Run(ctx, prog)
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return int(exitStatus), nil
		}
		return 1, err
	}

	return 0, nil
}
