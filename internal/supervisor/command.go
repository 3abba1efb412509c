// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/pvremux/internal/procgroup"
)

// DefaultKillGrace is how long Stop waits after SIGTERM before killing the group.
const DefaultKillGrace = 5 * time.Second

// CommandSpec describes an external tool invocation.
type CommandSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	// OnStdout receives every stdout line. Called from a single goroutine.
	OnStdout  func(line string)
	KillGrace time.Duration
	// StderrLines bounds the retained diagnostic tail.
	StderrLines int
}

// CommandOperation is an Operation backed by a process group.
type CommandOperation struct {
	cmd   *exec.Cmd
	grace time.Duration
	ring  *RingBuffer

	done     chan error
	exited   chan struct{}
	exitErr  error
	stopOnce sync.Once
	stopErr  error
}

// StartCommand launches spec in its own process group.
func StartCommand(spec CommandSpec) (*CommandOperation, error) {
	if spec.Path == "" {
		return nil, errors.New("command path is empty")
	}
	cmd := exec.Command(spec.Path, spec.Args...) // #nosec G204 -- tool paths come from the operator's config
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	lines := spec.StderrLines
	if lines <= 0 {
		lines = 100
	}
	grace := spec.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	op := &CommandOperation{
		cmd:    cmd,
		grace:  grace,
		ring:   NewRingBuffer(lines),
		done:   make(chan error, 1),
		exited: make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	go op.monitor(stdout, stderr, spec.OnStdout)
	return op, nil
}

func (o *CommandOperation) monitor(stdout, stderr io.Reader, onStdout func(string)) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			o.ring.Add(sc.Text())
		}
	}()

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if onStdout != nil {
			onStdout(sc.Text())
		}
	}
	// Pipes must be drained before Wait closes them.
	_, _ = io.Copy(io.Discard, stdout)
	wg.Wait()

	err := o.cmd.Wait()
	if err != nil {
		if tail := o.ring.GetAll(); len(tail) > 0 {
			err = fmt.Errorf("%w: %s", err, strings.Join(lastN(tail, 5), " | "))
		}
	}
	o.exitErr = err
	close(o.exited)
	o.done <- err
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Done delivers the exit status once.
func (o *CommandOperation) Done() <-chan error { return o.done }

// Pause suspends the whole process group.
func (o *CommandOperation) Pause() error { return procgroup.Suspend(o.cmd) }

// Resume continues a suspended process group.
func (o *CommandOperation) Resume() error { return procgroup.Resume(o.cmd) }

// SetPriority renices the process group.
func (o *CommandOperation) SetPriority(p Priority) error {
	return procgroup.SetNice(o.cmd, p.Nice())
}

// Stop terminates the group, escalating to SIGKILL after the grace period.
// Safe to call more than once or after the process exited on its own.
func (o *CommandOperation) Stop() error {
	o.stopOnce.Do(func() {
		select {
		case <-o.exited:
			return
		default:
		}
		wait := make(chan error, 1)
		go func() {
			<-o.exited
			wait <- o.exitErr
		}()
		o.stopErr = procgroup.Terminate(o.cmd, wait, o.grace)
	})
	return o.stopErr
}

// Diagnostics returns the retained stderr tail.
func (o *CommandOperation) Diagnostics() []string {
	return o.ring.GetAll()
}

// PID of the group leader, 0 if not running.
func (o *CommandOperation) PID() int {
	if o.cmd == nil || o.cmd.Process == nil {
		return 0
	}
	return o.cmd.Process.Pid
}

// RingBuffer keeps the last N lines written to it.
type RingBuffer struct {
	lines []string
	pos   int
	full  bool
	mu    sync.Mutex
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{lines: make([]string, size)}
}

func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

// GetAll returns the retained lines oldest first.
func (r *RingBuffer) GetAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.pos]...)
	}
	res := make([]string, len(r.lines))
	copy(res, r.lines[r.pos:])
	copy(res[len(r.lines)-r.pos:], r.lines[:r.pos])
	return res
}
