// Package runner implements the three program-execution flavors: synchronous
// run (caller hears about completion), decoupled start (caller gets a pid and
// queries the registry later) and script run (body materialized to a temp
// file first). Completion is detected by polling from the event loop; there
// is no SIGCHLD handling, a monitor callback probes the child once a second
// until it exits.
package runner

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loykin/guestexec/internal/envtable"
	"github.com/loykin/guestexec/internal/eventloop"
	"github.com/loykin/guestexec/internal/metrics"
	"github.com/loykin/guestexec/internal/procmgr"
	"github.com/loykin/guestexec/internal/procreg"
	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// PollInterval is the fixed completion-poll period. There is no backoff.
const PollInterval = time.Second

// Reporter observes completions of synchronous runs. Implementations run on
// the event loop and must not block.
type Reporter interface {
	ProgramCompleted(requestName string, pid uint64, exitCode int32)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(requestName string, pid uint64, exitCode int32)

func (f ReporterFunc) ProgramCompleted(requestName string, pid uint64, exitCode int32) {
	f(requestName, pid, exitCode)
}

// ExitSink receives terminal registry records, typically for persistence.
type ExitSink interface {
	RecordExit(rec procreg.Record)
}

// CaptureFunc opens the output destinations for one launch, keyed by the
// program's base name. Either writer may be nil. The monitor closes the
// writers once the child has been reaped.
type CaptureFunc func(name string) (stdout, stderr io.WriteCloser, err error)

// RunContext carries the identity resolved by the impersonation gate for the
// duration of one launch.
type RunContext struct {
	Credential *syscall.Credential // nil runs as the agent
	Username   string
}

// Runner owns all in-flight launches. It must only be used from the event
// loop goroutine.
type Runner struct {
	loop     *eventloop.Loop
	launcher procmgr.Launcher
	env      *envtable.Table
	reg      *procreg.Registry
	reporter Reporter
	sink     ExitSink
	capture  CaptureFunc
	tempDir  string
	log      *slog.Logger
}

// Config wires a Runner. Loop, Launcher, Env and Registry are required.
type Config struct {
	Loop     *eventloop.Loop
	Launcher procmgr.Launcher
	Env      *envtable.Table
	Registry *procreg.Registry
	Reporter Reporter
	Sink     ExitSink
	Capture  CaptureFunc // nil discards child output
	TempDir  string      // script staging dir; empty means the OS default
	Logger   *slog.Logger
}

func New(cfg Config) *Runner {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		loop:     cfg.Loop,
		launcher: cfg.Launcher,
		env:      cfg.Env,
		reg:      cfg.Registry,
		reporter: cfg.Reporter,
		sink:     cfg.Sink,
		capture:  cfg.Capture,
		tempDir:  cfg.TempDir,
		log:      log,
	}
}

// SetReporter replaces the completion observer. Intended for init-time
// wiring before the loop starts.
func (r *Runner) SetReporter(rep Reporter) { r.reporter = rep }

// ExtractProgramPath splits a command line into the program path and the
// remaining arguments. Leading spaces are stripped; a leading double quote
// makes the path run to the closing quote, otherwise it runs to the first
// space.
func ExtractProgramPath(commandLine string) (path, args string) {
	s := strings.TrimLeft(commandLine, " ")
	if strings.HasPrefix(s, `"`) {
		rest := s[1:]
		if i := strings.IndexByte(rest, '"'); i >= 0 {
			return rest[:i], strings.TrimLeft(rest[i+1:], " ")
		}
		// Unterminated quote: treat the remainder as the path.
		return rest, ""
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimLeft(s[i+1:], " ")
	}
	return s, ""
}

// checkRunnable verifies the program exists and is executable before any
// child is created, so the two failures stay distinguishable for the caller.
func checkRunnable(path string) error {
	if path == "" {
		return status.Errf(status.ErrInvalidArg, "empty program path")
	}
	if err := unix.Access(path, unix.F_OK); err != nil {
		return status.Errf(status.ErrNotFound, "program %q", path)
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return status.Errf(status.ErrPermission, "program %q is not executable", path)
	}
	return nil
}

// quoteCommand rebuilds a launchable command line from an extracted path and
// its argument string. The path is always re-quoted so paths with spaces
// survive the shell.
func quoteCommand(path, args string) string {
	if args == "" {
		return `"` + path + `"`
	}
	return `"` + path + `" ` + args
}

// RunProgram launches a command line and reports completion through the
// Reporter once the child exits. It returns the child pid, or -1 with an
// error when nothing was started.
func (r *Runner) RunProgram(rc RunContext, body request.RunProgram, requestName string) (int64, error) {
	path, args := ExtractProgramPath(body.CommandLine)
	if err := checkRunnable(path); err != nil {
		return -1, err
	}
	outW, errW := r.openCapture(filepath.Base(path))
	proc, err := r.launcher.Launch(procmgr.LaunchSpec{
		Command:    quoteCommand(path, args+appendArgs(body.Args)),
		Env:        r.env.Environ(),
		Credential: rc.Credential,
		Stdout:     outW,
		Stderr:     errW,
	})
	if err != nil {
		closeWriters(outW, errW)
		return -1, err
	}
	metrics.IncProgramStart("run")
	metrics.AddAsyncProcesses(1)
	report := body.Options&request.RunReturnImmediately == 0
	r.armMonitor(proc, func(exitCode int32) {
		closeWriters(outW, errW)
		if report && r.reporter != nil {
			r.reporter.ProgramCompleted(requestName, uint64(proc.Pid()), exitCode)
		}
	})
	return int64(proc.Pid()), nil
}

// StartProgram launches a program and records it in the exited-process
// registry before returning, so a status query can find the pid even if the
// child exits immediately after. Completion is never reported to the caller;
// the registry record is the only trace.
func (r *Runner) StartProgram(rc RunContext, body request.StartProgram, requestName string) (int64, error) {
	path, args := ExtractProgramPath(body.ProgramPath)
	if err := checkRunnable(path); err != nil {
		return -1, err
	}
	if body.WorkingDir != "" {
		if err := checkWorkDir(body.WorkingDir); err != nil {
			return -1, err
		}
	}
	env := r.env.Environ()
	if len(body.EnvVars) > 0 {
		env = body.EnvVars
	}
	fullCommand := quoteCommand(path, args+appendArgs(body.Arguments))
	outW, errW := r.openCapture(filepath.Base(path))
	proc, err := r.launcher.Launch(procmgr.LaunchSpec{
		Command:    fullCommand,
		WorkDir:    body.WorkingDir,
		Env:        env,
		Credential: rc.Credential,
		Stdout:     outW,
		Stderr:     errW,
	})
	if err != nil {
		closeWriters(outW, errW)
		return -1, err
	}
	pid := uint64(proc.Pid())
	r.reg.Update(&procreg.Record{
		Pid:       pid,
		Name:      fullCommand,
		User:      rc.Username,
		StartTime: proc.StartTime().Unix(),
		Running:   true,
	})
	metrics.IncProgramStart("start")
	metrics.AddAsyncProcesses(1)
	r.armMonitor(proc, func(exitCode int32) {
		closeWriters(outW, errW)
		r.reg.MarkExited(pid, exitCode)
		if r.sink != nil {
			if rec := r.reg.Find(pid); rec != nil {
				r.sink.RecordExit(*rec)
			}
		}
	})
	return int64(pid), nil
}

// armMonitor schedules the 1s poll for proc. onExit runs on the event loop
// exactly once, after the exit code has been collected.
func (r *Runner) armMonitor(proc procmgr.Proc, onExit func(exitCode int32)) {
	var poll func()
	poll = func() {
		if proc.Running() {
			r.loop.After(PollInterval, poll)
			return
		}
		exitCode := int32(proc.ExitCode())
		r.log.Debug("program exited", "pid", proc.Pid(), "exit_code", exitCode)
		onExit(exitCode)
		proc.Release()
		metrics.AddAsyncProcesses(-1)
	}
	r.loop.After(PollInterval, poll)
}

// openCapture resolves the output destinations for one launch. A capture
// failure disables capture for that launch only; the program still runs.
func (r *Runner) openCapture(name string) (io.WriteCloser, io.WriteCloser) {
	if r.capture == nil {
		return nil, nil
	}
	outW, errW, err := r.capture(name)
	if err != nil {
		r.log.Warn("output capture unavailable", "program", name, "error", err)
		return nil, nil
	}
	return outW, errW
}

func closeWriters(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

func appendArgs(args string) string {
	if args == "" {
		return ""
	}
	return " " + args
}

func checkWorkDir(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return status.FromOS(err)
	}
	if !st.IsDir() {
		return status.Errf(status.ErrNotADirectory, "working directory %q", dir)
	}
	return nil
}
