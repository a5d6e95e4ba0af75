package procmgr

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loykin/guestexec/internal/status"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix-only test")
	}
}

func TestBuildCommandPlain(t *testing.T) {
	cmd := BuildCommand("/bin/echo hello world")
	if cmd.Path != "/bin/echo" {
		t.Fatalf("path = %q", cmd.Path)
	}
	if len(cmd.Args) != 3 || cmd.Args[1] != "hello" || cmd.Args[2] != "world" {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestBuildCommandMetachars(t *testing.T) {
	cmd := BuildCommand("echo a | grep a")
	if cmd.Path != "/bin/sh" {
		t.Fatalf("metacharacters should route through the shell, got %q", cmd.Path)
	}
	if cmd.Args[1] != "-c" || cmd.Args[2] != "echo a | grep a" {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestBuildCommandExplicitShell(t *testing.T) {
	cmd := BuildCommand(`/bin/sh -c 'echo hi > /dev/null'`)
	if cmd.Path != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("explicit shell not honored: %v", cmd.Args)
	}
	if cmd.Args[2] != "echo hi > /dev/null" {
		t.Fatalf("outer quotes should be stripped, got %q", cmd.Args[2])
	}
}

func pollExit(t *testing.T, p Proc) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !p.Running() {
			return p.ExitCode()
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %d did not exit in time", p.Pid())
	return -1
}

func TestLaunchCollectsExitCode(t *testing.T) {
	requireUnix(t)
	p, err := OSLauncher{}.Launch(LaunchSpec{Command: "sh -c 'exit 3'", Env: os.Environ()})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer p.Release()
	if got := pollExit(t, p); got != 3 {
		t.Fatalf("exit code = %d, want 3", got)
	}
}

func TestLaunchEnvReachesChild(t *testing.T) {
	requireUnix(t)
	p, err := OSLauncher{}.Launch(LaunchSpec{
		Command: "sh -c 'test \"$GUEST_PROBE\" = yes'",
		Env:     []string{"PATH=/usr/bin:/bin", "GUEST_PROBE=yes"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer p.Release()
	if got := pollExit(t, p); got != 0 {
		t.Fatalf("child did not see injected env, exit=%d", got)
	}
}

func TestLaunchCapturesStdout(t *testing.T) {
	requireUnix(t)
	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p, err := OSLauncher{}.Launch(LaunchSpec{
		Command: "sh -c 'echo captured'",
		Env:     os.Environ(),
		Stdout:  f,
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer p.Release()
	if got := pollExit(t, p); got != 0 {
		t.Fatalf("exit code = %d", got)
	}
	_ = f.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "captured\n" {
		t.Fatalf("stdout capture = %q", b)
	}
}

func TestKillReportsSignalExit(t *testing.T) {
	requireUnix(t)
	p, err := OSLauncher{}.Launch(LaunchSpec{Command: "/bin/sleep 30", Env: os.Environ()})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer p.Release()
	if !p.Running() {
		t.Fatalf("sleep should be running")
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if got := pollExit(t, p); got != 137 {
		t.Fatalf("exit code = %d, want 137 (SIGKILL)", got)
	}
}

func TestKillByPidMissing(t *testing.T) {
	requireUnix(t)
	// Pid near the max is effectively never allocated.
	err := KillByPid(1 << 22)
	if status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestListSystemProcessesIncludesSelf(t *testing.T) {
	requireUnix(t)
	procs, err := ListSystemProcesses()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	self := uint64(os.Getpid())
	for _, sp := range procs {
		if sp.Pid == self {
			if sp.Name == "" {
				t.Fatalf("self entry has no name")
			}
			return
		}
	}
	t.Fatalf("own pid %d missing from listing of %d processes", self, len(procs))
}
