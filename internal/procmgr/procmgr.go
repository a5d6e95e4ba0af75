// Package procmgr holds the process-control primitives the orchestrators are
// built on: launching a command line, non-blocking liveness and exit-code
// collection, and delivering kill signals. The Launcher/Proc interfaces are
// narrow so tests can substitute scripted fakes for real children.
package procmgr

import (
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// LaunchSpec describes one child to start.
type LaunchSpec struct {
	// Command is the full command line. It is run through the shell only
	// when it explicitly invokes one or contains shell metacharacters.
	Command string
	WorkDir string
	Env     []string // complete child environment, not a delta
	// Credential switches the child to another uid/gid. Nil runs the child
	// as the agent's own identity.
	Credential *syscall.Credential
	// Stdout and Stderr receive the child's output. A nil writer discards
	// that stream.
	Stdout io.Writer
	Stderr io.Writer
}

// Proc is a launched child. Running performs a non-blocking reap, so once it
// reports false the exit code is available; the child is never left a zombie
// by a caller that polls Running to completion.
type Proc interface {
	Pid() int
	StartTime() time.Time
	Running() bool
	// ExitCode is valid only after Running has reported false. Children
	// killed by a signal report 128+signal, matching shell convention.
	ExitCode() int
	Kill() error
	// Release drops bookkeeping for the child without waiting for it.
	Release()
}

// Launcher starts children. The production implementation is OSLauncher.
type Launcher interface {
	Launch(spec LaunchSpec) (Proc, error)
}

// BuildCommand constructs an *exec.Cmd for a command line. An explicit
// "sh -c ..." prefix is honored without double-wrapping; shell
// metacharacters force a /bin/sh -c fallback; a plain command line is
// field-split and executed directly.
func BuildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(parts[0], args...)
}

// parseExplicitShell detects "sh -c <ARG>" or "/bin/sh -c <ARG>" at the start
// of cmdStr and returns the argument after -c with one level of outer quotes
// stripped, so the script reaches the shell unwrapped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
