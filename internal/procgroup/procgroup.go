// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup controls an external tool together with every child it
// spawns: termination, suspension and scheduling priority act on the whole
// process group.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

var (
	ErrNotStarted  = errors.New("process not started")
	ErrUnsupported = errors.New("operation not supported on this platform")
)

// Set configures the command to start in a new process group.
// Mandatory for the group operations below to reach grandchildren.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Suspend stops the process group until Resume is called.
func Suspend(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	return suspend(cmd.Process.Pid)
}

// Resume continues a suspended process group.
func Resume(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	return resume(cmd.Process.Pid)
}

// SetNice applies a scheduling niceness (0 normal .. 19 idle) to the group.
func SetNice(cmd *exec.Cmd, nice int) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	return setNice(cmd.Process.Pid, nice)
}

// Terminate attempts to gracefully stop a process group.
// It asks the group to exit, waits for the process to exit (via the provided
// wait channel), and if it doesn't exit within grace, kills it.
// It consumes and returns the error from waitCh.
// It is safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// A stopped group never handles SIGTERM.
	_ = resume(cmd.Process.Pid)
	_ = interrupt(cmd.Process.Pid)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
		_ = kill(cmd.Process.Pid)
		return <-waitCh
	}
}
