// Package server is the read-only debug and observability HTTP surface:
// process registry snapshots, health, and Prometheus metrics. The guest
// request protocol does not pass through here.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/guestexec/internal/metrics"
	"github.com/loykin/guestexec/internal/procreg"
)

// SnapshotFunc returns a copy of the process registry. The wiring marshals
// the call onto the event loop; handlers must treat the result as owned.
type SnapshotFunc func() []procreg.Record

// Router provides embeddable HTTP handlers for inspecting the agent.
// Endpoints:
//
//	GET {basePath}/healthz
//	GET {basePath}/version
//	GET {basePath}/processes          all registry records
//	GET {basePath}/processes?pid=N    one record, 404 when absent
//	GET {basePath}/metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	snapshot SnapshotFunc
	version  string
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
func NewRouter(snapshot SnapshotFunc, version, basePath string) *Router {
	return &Router{snapshot: snapshot, version: version, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/version", r.handleVersion)
	group.GET("/processes", r.handleProcesses)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Close the returned server to stop listening.
func NewServer(addr, basePath, version string, snapshot SnapshotFunc) *http.Server {
	r := NewRouter(snapshot, version, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type versionResp struct {
	Version string `json:"version"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// processInfo is the JSON shape of one registry record.
type processInfo struct {
	Pid       uint64 `json:"pid"`
	Name      string `json:"name"`
	User      string `json:"user"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
	ExitCode  int32  `json:"exit_code"`
	Running   bool   `json:"running"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleVersion(c *gin.Context) {
	writeJSON(c, http.StatusOK, versionResp{Version: r.version})
}

func (r *Router) handleProcesses(c *gin.Context) {
	recs := r.snapshot()
	if pidStr := c.Query("pid"); pidStr != "" {
		pid, err := strconv.ParseUint(pidStr, 10, 64)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid pid: " + pidStr})
			return
		}
		for _, rec := range recs {
			if rec.Pid == pid {
				writeJSON(c, http.StatusOK, toProcessInfo(rec))
				return
			}
		}
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no such process"})
		return
	}
	out := make([]processInfo, len(recs))
	for i, rec := range recs {
		out[i] = toProcessInfo(rec)
	}
	writeJSON(c, http.StatusOK, out)
}

func toProcessInfo(rec procreg.Record) processInfo {
	return processInfo{
		Pid:       rec.Pid,
		Name:      rec.Name,
		User:      rec.User,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		ExitCode:  rec.ExitCode,
		Running:   rec.Running,
	}
}
