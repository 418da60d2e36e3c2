//go:build !windows

package bash

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// foregroundExecHandler starts external programs in their own process group
// and hands them the terminal, so Ctrl+C reaches the program instead of nlsh.
// When ctx ends first the group gets SIGINT, then SIGKILL after killTimeout.
func foregroundExecHandler(killTimeout time.Duration) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		path, err := interp.LookPathDir(hc.Dir, hc.Env, args[0])
		if err != nil {
			return err
		}

		cmd := &exec.Cmd{
			Path:        path,
			Args:        args,
			Dir:         hc.Dir,
			Env:         exportedEnv(hc.Env),
			Stdin:       hc.Stdin,
			Stdout:      hc.Stdout,
			Stderr:      hc.Stderr,
			SysProcAttr: &syscall.SysProcAttr{Setpgid: true},
		}
		if err := cmd.Start(); err != nil {
			return err
		}
		pgid := cmd.Process.Pid

		if restore := handTerminalTo(hc.Stdin, pgid); restore != nil {
			defer restore()
		}

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		select {
		case err := <-done:
			return waitStatus(err)
		case <-ctx.Done():
		}

		_ = unix.Kill(-pgid, unix.SIGINT)
		if killTimeout > 0 {
			select {
			case err := <-done:
				return waitStatus(err)
			case <-time.After(killTimeout):
			}
		}
		_ = unix.Kill(-pgid, unix.SIGKILL)
		return waitStatus(<-done)
	}
}

// waitStatus turns a process exit into the interpreter's exit status,
// using 128+N for a program killed by signal N.
func waitStatus(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return interp.ExitStatus(uint8(128 + int(ws.Signal())))
	}
	return interp.ExitStatus(uint8(exitErr.ExitCode()))
}

// handTerminalTo makes pgid the foreground group of stdin's terminal and
// returns a func restoring the previous group. It returns nil when stdin is
// not a terminal.
func handTerminalTo(stdin any, pgid int) func() {
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	fd := int(f.Fd())

	previous, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil {
		return nil
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid); err != nil {
		return nil
	}
	return func() {
		_ = unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, previous)
	}
}

func exportedEnv(env expand.Environ) []string {
	var vars []string
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported {
			vars = append(vars, name+"="+vr.String())
		}
		return true
	})
	return vars
}
