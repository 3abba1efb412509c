// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package procgroup

import (
	"os/exec"

	"github.com/shirou/gopsutil/v3/process"
)

func set(cmd *exec.Cmd) {
	// No process groups here; only the root process is controlled.
}

func lookup(pid int) (*process.Process, error) {
	return process.NewProcess(int32(pid)) // #nosec G115 -- pids fit in int32
}

func suspend(pid int) error {
	p, err := lookup(pid)
	if err != nil {
		return err
	}
	return p.Suspend()
}

func resume(pid int) error {
	p, err := lookup(pid)
	if err != nil {
		return err
	}
	return p.Resume()
}

func interrupt(pid int) error {
	p, err := lookup(pid)
	if err != nil {
		return nil
	}
	return p.Terminate()
}

func kill(pid int) error {
	p, err := lookup(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

func setNice(pid, nice int) error {
	return ErrUnsupported
}
