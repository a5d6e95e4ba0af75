//go:build !windows

package procmgr

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/loykin/guestexec/internal/status"
)

// OSLauncher starts real children. Each child goes into its own process
// group so a later group signal cannot reach the agent.
type OSLauncher struct{}

func (OSLauncher) Launch(spec LaunchSpec) (Proc, error) {
	cmd := BuildCommand(spec.Command)
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	attrs := &syscall.SysProcAttr{Setpgid: true}
	if spec.Credential != nil {
		attrs.Credential = spec.Credential
	}
	cmd.SysProcAttr = attrs
	if err := cmd.Start(); err != nil {
		return nil, status.FromOS(err)
	}
	return &osProc{cmd: cmd, started: time.Now()}, nil
}

type osProc struct {
	cmd      *exec.Cmd
	started  time.Time
	exited   bool
	exitCode int
}

func (p *osProc) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *osProc) StartTime() time.Time { return p.started }

// Running probes the child without blocking. A zombie counts as exited: the
// probe reaps it with Wait4(WNOHANG) and records the exit code.
func (p *osProc) Running() bool {
	if p.exited {
		return false
	}
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	if p.tryReap() {
		return false
	}
	pid := p.cmd.Process.Pid
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		// Exited but not yet collected; reap now so ExitCode is valid.
		p.tryReap()
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

func (p *osProc) ExitCode() int {
	if !p.exited {
		return -1
	}
	return p.exitCode
}

func (p *osProc) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return status.New(status.ErrNotFound)
	}
	return status.FromOS(syscall.Kill(p.cmd.Process.Pid, syscall.SIGKILL))
}

func (p *osProc) Release() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Release()
	}
	p.cmd = nil
}

// tryReap performs a non-blocking wait on the child to detect exit.
// It reports true when the child has been collected.
func (p *osProc) tryReap() bool {
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(p.cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
	if err != nil || pid == 0 {
		return false
	}
	p.exited = true
	switch {
	case ws.Exited():
		p.exitCode = ws.ExitStatus()
	case ws.Signaled():
		p.exitCode = 128 + int(ws.Signal())
	default:
		p.exitCode = -1
	}
	return true
}

// isZombieLinux reports whether /proc/<pid>/status shows state Z.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// KillByPid delivers SIGKILL to an arbitrary pid. Permission and existence
// failures surface as coded errors.
func KillByPid(pid int) error {
	return status.FromOS(syscall.Kill(pid, syscall.SIGKILL))
}

// Getpgrp returns the agent's own process group, used by the kill-process
// guard to refuse signals that would hit the whole group.
func Getpgrp() int { return syscall.Getpgrp() }
