package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/loykin/guestexec/internal/metrics"
	"github.com/loykin/guestexec/internal/procmgr"
	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// DefaultInterpreter runs scripts that name no interpreter of their own.
const DefaultInterpreter = "/bin/sh"

// scriptCreateAttempts bounds the exclusive-create candidate loop.
const scriptCreateAttempts = 10

// RunScript writes the script body to a private temp file and runs it under
// the requested interpreter. The temp file is removed when the child exits,
// whatever the script's outcome, and on every launch failure.
func (r *Runner) RunScript(rc RunContext, body request.RunScript, requestName string) (int64, error) {
	interpreter := body.Interpreter
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if err := checkRunnable(interpreter); err != nil {
		return -1, err
	}
	scriptPath, err := r.stageScript(body.ScriptText)
	if err != nil {
		return -1, err
	}
	outW, errW := r.openCapture(filepath.Base(interpreter))
	proc, err := r.launcher.Launch(procmgr.LaunchSpec{
		Command:    quoteCommand(interpreter, `"`+scriptPath+`"`),
		Env:        r.env.Environ(),
		Credential: rc.Credential,
		Stdout:     outW,
		Stderr:     errW,
	})
	if err != nil {
		closeWriters(outW, errW)
		r.removeScript(scriptPath)
		return -1, err
	}
	metrics.IncProgramStart("script")
	metrics.AddAsyncProcesses(1)
	report := body.Options&request.RunReturnImmediately == 0
	r.armMonitor(proc, func(exitCode int32) {
		closeWriters(outW, errW)
		r.removeScript(scriptPath)
		if report && r.reporter != nil {
			r.reporter.ProgramCompleted(requestName, uint64(proc.Pid()), exitCode)
		}
	})
	return int64(proc.Pid()), nil
}

// stageScript creates the script file exclusively so a concurrent guesser
// cannot pre-create the path and capture the body. Candidates are tried a
// bounded number of times; any error other than the name already existing
// stops the loop.
func (r *Runner) stageScript(text string) (string, error) {
	dir := r.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	var lastErr error
	for i := 0; i < scriptCreateAttempts; i++ {
		// #nosec G404 candidate names need uniqueness, not unpredictability
		path := filepath.Join(dir, fmt.Sprintf("guestScript_%08x", rand.Uint32()))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				lastErr = err
				continue
			}
			return "", status.FromOS(err)
		}
		if _, err := f.WriteString(text); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", status.FromOS(err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", status.FromOS(err)
		}
		return path, nil
	}
	return "", status.Wrap(status.ErrFail, lastErr)
}

func (r *Runner) removeScript(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("leaving script file behind", "path", path, "error", err)
	}
}
