// Package agent ties the executor together: one Dispatcher routes decoded
// requests to their handlers under the impersonate/execute/release protocol
// and normalizes every outcome into a Response.
package agent

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/loykin/guestexec/internal/envtable"
	"github.com/loykin/guestexec/internal/guestfs"
	"github.com/loykin/guestexec/internal/impersonate"
	"github.com/loykin/guestexec/internal/metrics"
	"github.com/loykin/guestexec/internal/netconf"
	"github.com/loykin/guestexec/internal/procmgr"
	"github.com/loykin/guestexec/internal/procreg"
	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/runner"
	"github.com/loykin/guestexec/internal/status"
)

// PacketProcessor handles raw protocol passthrough for op RelayPacket.
// The reply is returned verbatim with an explicit length.
type PacketProcessor interface {
	Process(data []byte) ([]byte, error)
}

// URLOpener launches the guest's URL handler.
type URLOpener func(url string) error

// Dispatcher routes requests. It must be driven from the event loop
// goroutine; handlers share loop-owned state without locks.
type Dispatcher struct {
	gate    *impersonate.Gate
	run     *runner.Runner
	fs      *guestfs.FS
	env     *envtable.Table
	reg     *procreg.Registry
	packet  PacketProcessor
	openURL URLOpener
	log     *slog.Logger

	version       string
	maxResultSize int
	selfPid       int
	selfPgrp      int
	// listProcs is swappable so tests can script the process table.
	listProcs func() ([]procmgr.SysProc, error)
	// kill is swappable so tests can observe delivered signals.
	kill func(pid int) error
}

// Config wires a Dispatcher.
type Config struct {
	Gate          *impersonate.Gate
	Runner        *runner.Runner
	FS            *guestfs.FS
	Env           *envtable.Table
	Registry      *procreg.Registry
	Packet        PacketProcessor // nil rejects RelayPacket as unsupported
	OpenURL       URLOpener       // nil uses the platform default handler
	Logger        *slog.Logger
	Version       string
	MaxResultSize int
}

func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	maxResult := cfg.MaxResultSize
	if maxResult <= 0 {
		maxResult = guestfs.DefaultMaxResultSize
	}
	opener := cfg.OpenURL
	if opener == nil {
		opener = defaultURLOpener
	}
	return &Dispatcher{
		gate:          cfg.Gate,
		run:           cfg.Runner,
		fs:            cfg.FS,
		env:           cfg.Env,
		reg:           cfg.Registry,
		packet:        cfg.Packet,
		openURL:       opener,
		log:           log,
		version:       cfg.Version,
		maxResultSize: maxResult,
		selfPid:       os.Getpid(),
		selfPgrp:      procmgr.Getpgrp(),
		listProcs:     procmgr.ListSystemProcesses,
		kill:          procmgr.KillByPid,
	}
}

// SetPacketProcessor registers the raw passthrough handler. Init-time only.
func (d *Dispatcher) SetPacketProcessor(p PacketProcessor) { d.packet = p }

// Dispatch executes one request. requestName identifies the host-side
// conversation and is echoed to the completion reporter for async runs.
func (d *Dispatcher) Dispatch(req request.Request, requestName string) Response {
	started := time.Now()
	resp := d.dispatch(req, requestName)
	metrics.IncRequest(req.Op.String(), resp.Code.String())
	metrics.ObserveRequestDuration(req.Op.String(), time.Since(started).Seconds())
	if resp.Code != status.OK {
		d.log.Debug("operation failed", "op", req.Op.String(), "status", resp.Code.String())
	}
	return resp
}

func (d *Dispatcher) dispatch(req request.Request, requestName string) Response {
	tok, err := d.gate.Acquire(req.Creds)
	if err != nil {
		return errResponse(err)
	}
	defer d.gate.Release(tok)

	switch req.Op {
	case request.OpCheckUserAccount, request.OpLogout:
		// The impersonation round trip above is the whole operation.
		return okResponse()

	case request.OpGetAgentState:
		return binaryResponse(d.agentState())

	case request.OpListProcesses:
		return textResponse(d.handleListProcesses())
	case request.OpListProcessesEx:
		body, ok := req.Body.(request.ListProcessesEx)
		if !ok && req.Body != nil {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return textResponse(d.handleListProcessesEx(body))

	case request.OpKillProcess:
		body, ok := req.Body.(request.KillProcess)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.handleKillProcess(body.Pid))

	case request.OpRunProgram:
		body, ok := req.Body.(request.RunProgram)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		rc, err := d.runContext(tok)
		if err != nil {
			return errResponse(err)
		}
		pid, err := d.run.RunProgram(rc, body, requestName)
		return textResponse(strconv.FormatInt(pid, 10), err)

	case request.OpStartProgram:
		body, ok := req.Body.(request.StartProgram)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		rc, err := d.runContext(tok)
		if err != nil {
			return errResponse(err)
		}
		pid, err := d.run.StartProgram(rc, body, requestName)
		return textResponse(strconv.FormatInt(pid, 10), err)

	case request.OpRunScript:
		body, ok := req.Body.(request.RunScript)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		rc, err := d.runContext(tok)
		if err != nil {
			return errResponse(err)
		}
		pid, err := d.run.RunScript(rc, body, requestName)
		return textResponse(strconv.FormatInt(pid, 10), err)

	case request.OpOpenURL:
		body, ok := req.Body.(request.OpenURL)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		if body.URL == "" {
			return errResponse(status.Errf(status.ErrInvalidArg, "empty url"))
		}
		return errResponse(d.openURL(body.URL))

	case request.OpReadVariable:
		body, ok := req.Body.(request.ReadVariable)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return textResponse(d.handleReadVariable(body))
	case request.OpReadEnvVariables:
		body, ok := req.Body.(request.ReadEnvVariables)
		if !ok && req.Body != nil {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return textResponse(d.handleReadEnvVariables(body), nil)
	case request.OpWriteVariable:
		body, ok := req.Body.(request.WriteVariable)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(d.handleWriteVariable(body))

	case request.OpRelayPacket:
		body, ok := req.Body.(request.Packet)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		if d.packet == nil {
			return errResponse(status.Errf(status.ErrUnsupported, "no packet processor registered"))
		}
		return binaryResponse(d.packet.Process(body.Data))

	case request.OpGetNetworkConfig:
		return binaryResponse(netconf.GetPrimaryConfig())
	case request.OpSetNetworkConfig:
		body, ok := req.Body.(request.SetNetworkConfig)
		if !ok {
			return errResponse(status.New(status.ErrInvalidBody))
		}
		return errResponse(netconf.SetConfig(body))

	case request.OpReadRegistry, request.OpWriteRegistry,
		request.OpDeleteRegistryKey, request.OpRegistryKeyExists:
		return errResponse(status.Errf(status.ErrUnsupported, "registry operations"))

	default:
		return d.dispatchFS(req)
	}
}

// runContext resolves the launch identity for a token.
func (d *Dispatcher) runContext(tok impersonate.Token) (runner.RunContext, error) {
	user, err := d.gate.Username(tok)
	if err != nil {
		return runner.RunContext{}, status.Wrap(status.ErrFail, err)
	}
	return runner.RunContext{Credential: tok.Credential(), Username: user}, nil
}

// handleKillProcess refuses signals that would take down the agent itself
// or its whole process group before touching the signal primitive. The
// guarded targets are denied as a permission failure, never an argument one.
func (d *Dispatcher) handleKillProcess(pid int64) error {
	switch {
	case pid == int64(d.selfPid):
		return status.Errf(status.ErrPermission, "refusing to kill own pid %d", pid)
	case pid == 0 || pid == -1:
		return status.Errf(status.ErrPermission, "refusing broadcast signal target %d", pid)
	case pid == -int64(d.selfPgrp):
		return status.Errf(status.ErrPermission, "refusing own process group %d", pid)
	}
	return d.kill(int(pid))
}

func boolText(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
