// Package procreg is the registry answering "what happened to the program I
// started" after the child is gone from the process table. Records for
// launched programs are kept while they run and for a retention window after
// they exit, then dropped. The registry lives on the event loop and takes no
// locks.
package procreg

import (
	"time"

	"github.com/loykin/guestexec/internal/metrics"
)

// RetentionWindow is how long an exited record stays queryable.
const RetentionWindow = 5 * time.Minute

// Record is one launched program. A running record has Running true and
// zero ExitCode/EndTime; both are filled in by the monitor when the child
// exits.
type Record struct {
	Pid       uint64
	Name      string
	User      string
	StartTime int64 // unix seconds
	ExitCode  int32
	EndTime   int64 // unix seconds; zero while running
	Running   bool
}

// Registry maps pid to the latest record for that pid. A pid reused by the
// OS within the retention window replaces the old record; that loss is
// accepted rather than detected.
type Registry struct {
	now     func() time.Time
	records map[uint64]*Record
}

// New builds a registry stamping time with now; nil means time.Now.
func New(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{now: now, records: make(map[uint64]*Record)}
}

// Update is the single maintenance entry point: it inserts or replaces rec
// (nil means housekeeping only) and then reaps exited records older than the
// retention window. Query paths call Update(nil) first so results never
// include expired entries.
func (r *Registry) Update(rec *Record) {
	if rec != nil {
		cp := *rec
		r.records[cp.Pid] = &cp
	}
	cutoff := r.now().Add(-RetentionWindow).Unix()
	reaped := 0
	for pid, old := range r.records {
		if old.Running {
			continue
		}
		if old.EndTime < cutoff {
			delete(r.records, pid)
			reaped++
		}
	}
	metrics.AddReaped(reaped)
	metrics.SetRegistrySize(len(r.records))
}

// MarkExited finishes the record for pid with its exit code. A record that
// was never inserted (or already reaped) gets a terminal entry so the exit
// is still reportable.
func (r *Registry) MarkExited(pid uint64, exitCode int32) {
	end := r.now().Unix()
	if rec, ok := r.records[pid]; ok {
		rec.Running = false
		rec.ExitCode = exitCode
		rec.EndTime = end
		r.Update(nil)
		return
	}
	r.Update(&Record{Pid: pid, ExitCode: exitCode, EndTime: end})
}

// Find returns the record for pid after housekeeping, or nil.
func (r *Registry) Find(pid uint64) *Record {
	r.Update(nil)
	rec, ok := r.records[pid]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Snapshot returns copies of all live records after housekeeping.
func (r *Registry) Snapshot() []Record {
	r.Update(nil)
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

// Len reports the record count without housekeeping.
func (r *Registry) Len() int { return len(r.records) }
