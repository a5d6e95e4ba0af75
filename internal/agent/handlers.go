package agent

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/loykin/guestexec/internal/guestfs"
	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// agentState serializes the capability property set, base64-encoded the way
// the host expects opaque state blobs.
func (d *Dispatcher) agentState() ([]byte, error) {
	state := struct {
		Version  string   `json:"version"`
		OS       string   `json:"os"`
		Arch     string   `json:"arch"`
		Features []string `json:"features"`
	}{
		Version: d.version,
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Features: []string{
			"run-program", "start-program", "run-script",
			"list-processes", "file-operations", "env-variables",
		},
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, status.Wrap(status.ErrFail, err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// handleListProcesses renders the live system table.
func (d *Dispatcher) handleListProcesses() (string, error) {
	procs, err := d.listProcs()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range procs {
		rec := guestfs.FormatProc(p.Cmdline, p.Pid, p.Owner, p.StartTime)
		if b.Len()+len(rec) > d.maxResultSize {
			break
		}
		b.WriteString(rec)
	}
	return b.String(), nil
}

// handleListProcessesEx merges the exited-process registry with the live
// table: registry records first (running and recently exited), then system
// processes not present in the registry with dummy exit fields. An optional
// pid filter restricts both halves.
func (d *Dispatcher) handleListProcessesEx(body request.ListProcessesEx) (string, error) {
	wanted := make(map[uint64]bool, len(body.Pids))
	for _, pid := range body.Pids {
		wanted[pid] = true
	}
	match := func(pid uint64) bool {
		return len(wanted) == 0 || wanted[pid]
	}

	known := make(map[uint64]bool)
	var b strings.Builder
	for _, rec := range d.reg.Snapshot() {
		known[rec.Pid] = true
		if !match(rec.Pid) {
			continue
		}
		s := guestfs.FormatProcEx(rec)
		if b.Len()+len(s) > d.maxResultSize {
			return b.String(), nil
		}
		b.WriteString(s)
	}

	procs, err := d.listProcs()
	if err != nil {
		// The registry half is still a valid partial result.
		return b.String(), err
	}
	for _, p := range procs {
		if known[p.Pid] || !match(p.Pid) {
			continue
		}
		s := guestfs.FormatProcExLive(p.Cmdline, p.Pid, p.Owner, p.StartTime)
		if b.Len()+len(s) > d.maxResultSize {
			break
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// handleReadVariable reads one variable. Only the guest environment
// namespace exists on this platform; an unset name reads as empty.
func (d *Dispatcher) handleReadVariable(body request.ReadVariable) (string, error) {
	switch body.Kind {
	case request.VarGuestEnvironment:
		v, _ := d.env.Lookup(body.Name)
		return v, nil
	default:
		return "", status.Errf(status.ErrUnsupported, "variable namespace %d", body.Kind)
	}
}

// handleReadEnvVariables renders selected names, skipping absent ones, or
// the whole table when no names are given.
func (d *Dispatcher) handleReadEnvVariables(body request.ReadEnvVariables) string {
	var b strings.Builder
	if len(body.Names) == 0 {
		for _, kv := range d.env.Environ() {
			k, v, _ := strings.Cut(kv, "=")
			rec := guestfs.FormatEnvVar(k, v)
			if b.Len()+len(rec) > d.maxResultSize {
				break
			}
			b.WriteString(rec)
		}
		return b.String()
	}
	for _, name := range body.Names {
		v, ok := d.env.Lookup(name)
		if !ok {
			continue
		}
		rec := guestfs.FormatEnvVar(name, v)
		if b.Len()+len(rec) > d.maxResultSize {
			break
		}
		b.WriteString(rec)
	}
	return b.String()
}

// handleWriteVariable stores a variable. Environment writes require a
// privileged agent and are mirrored into the launch environment table so
// programs started afterwards observe them.
func (d *Dispatcher) handleWriteVariable(body request.WriteVariable) error {
	switch body.Kind {
	case request.VarGuestEnvironment:
		if !d.gate.Privileged() {
			return status.Errf(status.ErrPermission, "environment writes require a privileged agent")
		}
		if body.Name == "" {
			return status.Errf(status.ErrInvalidArg, "empty variable name")
		}
		if err := os.Setenv(body.Name, body.Value); err != nil {
			return status.Wrap(status.ErrFail, err)
		}
		d.env.Set(body.Name, body.Value)
		return nil
	default:
		return status.Errf(status.ErrUnsupported, "variable namespace %d", body.Kind)
	}
}

// dispatchFS routes the file and directory opcodes.
func (d *Dispatcher) dispatchFS(req request.Request) Response {
	switch req.Op {
	case request.OpDeleteFile:
		body, ok := req.Body.(request.Path)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.DeleteFile(body.Path))
	case request.OpDeleteDirectory:
		body, ok := req.Body.(request.Path)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.DeleteDirectory(body.Path))
	case request.OpDeleteEmptyDirectory:
		body, ok := req.Body.(request.Path)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.DeleteEmptyDirectory(body.Path))

	case request.OpFileExists:
		body, ok := req.Body.(request.Path)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		exists, err := d.fs.FileExists(body.Path)
		return textResponse(boolText(exists), err)
	case request.OpDirectoryExists:
		body, ok := req.Body.(request.Path)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		exists, err := d.fs.DirectoryExists(body.Path)
		return textResponse(boolText(exists), err)

	case request.OpMoveFile, request.OpMoveFileEx:
		body, ok := req.Body.(request.Move)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.MoveFile(body, req.Op == request.OpMoveFileEx))
	case request.OpMoveDirectory:
		body, ok := req.Body.(request.Move)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.MoveDirectory(body))

	case request.OpCreateDirectory, request.OpCreateDirectoryEx:
		body, ok := req.Body.(request.CreateDirectory)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.CreateDirectory(body))

	case request.OpCreateTempFile, request.OpCreateTempFileEx:
		body, ok := req.Body.(request.CreateTemp)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		path, err := d.fs.CreateTempFile(body)
		return textResponse(path, err)
	case request.OpCreateTempDirectory:
		body, ok := req.Body.(request.CreateTemp)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		path, err := d.fs.CreateTempDirectory(body)
		return textResponse(path, err)

	case request.OpGetFileInfo:
		body, ok := req.Body.(request.Path)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return textResponse(d.fs.GetFileInfo(body.Path))
	case request.OpSetFileAttributes:
		body, ok := req.Body.(request.SetFileAttributes)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.fs.SetFileAttributes(body))

	case request.OpListDirectory:
		body, ok := req.Body.(request.ListDirectory)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return textResponse(d.fs.ListDirectory(body))
	case request.OpListFiles:
		body, ok := req.Body.(request.ListFiles)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return textResponse(d.fs.ListFiles(body))
	case request.OpListFileSystems:
		return textResponse(d.fs.ListFileSystems())

	default:
		return errResponse(status.Errf(status.ErrUnsupported, "opcode %d", req.Op))
	}
}

// defaultURLOpener hands the URL to the desktop handler. The child is not
// monitored; openers are fire-and-forget.
func defaultURLOpener(url string) error {
	// #nosec G204 url is passed as a single argv element, not through a shell
	cmd := exec.Command("xdg-open", url)
	if err := cmd.Start(); err != nil {
		return status.FromOS(err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
