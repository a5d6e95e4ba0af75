// Package guestexec assembles the in-guest command executor: a
// single-threaded event loop driving an opcode dispatcher for program
// launches, file operations and guest queries, fronted by a unix socket
// transport and an optional debug HTTP listener.
package guestexec

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/guestexec/internal/agent"
	"github.com/loykin/guestexec/internal/config"
	"github.com/loykin/guestexec/internal/envtable"
	"github.com/loykin/guestexec/internal/eventloop"
	"github.com/loykin/guestexec/internal/guestfs"
	"github.com/loykin/guestexec/internal/history"
	"github.com/loykin/guestexec/internal/impersonate"
	"github.com/loykin/guestexec/internal/logger"
	"github.com/loykin/guestexec/internal/metrics"
	"github.com/loykin/guestexec/internal/procmgr"
	"github.com/loykin/guestexec/internal/procreg"
	"github.com/loykin/guestexec/internal/runner"
	"github.com/loykin/guestexec/internal/server"
	"github.com/loykin/guestexec/internal/transport"
)

// Re-export the pieces embedders need.

type Config = config.FileConfig

type Reporter = runner.Reporter

type ReporterFunc = runner.ReporterFunc

// LoadConfig parses the TOML config file at path.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// RegisterMetricsDefault registers the agent's collectors with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// Agent is the assembled executor. Build it with NewAgent, optionally attach
// a completion Reporter, then Run it.
type Agent struct {
	cfg     config.FileConfig
	version string
	log     *slog.Logger

	loop     *eventloop.Loop
	reg      *procreg.Registry
	run      *runner.Runner
	disp     *agent.Dispatcher
	tr       *transport.Server
	recorder *history.Recorder
	debug    *http.Server
}

// NewAgent wires the executor from a loaded config. The returned Agent does
// not listen until Run.
func NewAgent(cfg config.FileConfig, version string) (*Agent, error) {
	log := logger.Setup(cfg.Log)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	loop := eventloop.New(nil)
	env := envtable.New()
	launchEnv, err := cfg.LaunchEnv()
	if err != nil {
		return nil, err
	}
	if len(launchEnv) > 0 {
		env.FromList(launchEnv)
	} else {
		env.FromOS()
	}

	reg := procreg.New(loop.Clock().Now)

	gate := impersonate.New(nil, impersonate.NewUnixSwitcher())
	gate.SetConsoleUserPolicy(cfg.AllowConsoleUser)

	var recorder *history.Recorder
	if cfg.HistoryDSN != "" {
		sink, err := history.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			return nil, err
		}
		recorder = history.NewRecorder(sink, log)
	}

	runCfg := runner.Config{
		Loop:     loop,
		Launcher: procmgr.OSLauncher{},
		Env:      env,
		Registry: reg,
		Capture:  cfg.Log.ProcessWriters,
		TempDir:  cfg.TempDir,
		Logger:   log,
	}
	if recorder != nil {
		runCfg.Sink = recorder
	}
	run := runner.New(runCfg)

	disp := agent.New(agent.Config{
		Gate:          gate,
		Runner:        run,
		FS:            guestfs.New(cfg.MaxResultSize, cfg.TempDir, log),
		Env:           env,
		Registry:      reg,
		Logger:        log,
		Version:       version,
		MaxResultSize: cfg.MaxResultSize,
	})

	return &Agent{
		cfg:      cfg,
		version:  version,
		log:      log,
		loop:     loop,
		reg:      reg,
		run:      run,
		disp:     disp,
		tr:       transport.NewServer(loop, disp, log),
		recorder: recorder,
	}, nil
}

// SetReporter attaches the host-side completion observer. Call before Run.
func (a *Agent) SetReporter(r Reporter) { a.run.SetReporter(r) }

// Snapshot returns a copy of the process registry, marshalled through the
// event loop so it is safe from any goroutine.
func (a *Agent) Snapshot() []procreg.Record {
	ch := make(chan []procreg.Record, 1)
	if !a.loop.Post(func() { ch <- a.reg.Snapshot() }) {
		return nil
	}
	return <-ch
}

// Run binds the socket and drives the event loop until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if a.cfg.Socket == "" {
		a.cfg.Socket = config.DefaultSocket
	}
	if err := a.tr.Listen(a.cfg.Socket); err != nil {
		return err
	}
	if a.cfg.DebugAddr != "" {
		a.debug = server.NewServer(a.cfg.DebugAddr, "", a.version, a.Snapshot)
		a.log.Info("debug listener started", "addr", a.cfg.DebugAddr)
	}
	a.log.Info("agent listening", "socket", a.cfg.Socket, "version", a.version)

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.tr.Serve(ctx) }()

	runErr := a.loop.Run(ctx)

	a.tr.Close()
	<-serveErr
	if a.debug != nil {
		_ = a.debug.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
