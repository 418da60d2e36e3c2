//go:build windows

package bash

import (
	"time"

	"mvdan.cc/sh/v3/interp"
)

// Windows has no process groups to hand the console to.
func foregroundExecHandler(killTimeout time.Duration) interp.ExecHandlerFunc {
	return interp.DefaultExecHandler(killTimeout)
}
