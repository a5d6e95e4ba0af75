package procmgr

import (
	gpsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/guestexec/internal/status"
)

// SysProc is one row of the system process table.
type SysProc struct {
	Pid       uint64
	Name      string
	Cmdline   string
	Owner     string
	StartTime int64 // unix seconds
}

// ListSystemProcesses enumerates the live process table. Processes that
// disappear mid-scan are skipped; per-field failures leave the field empty
// rather than failing the listing.
func ListSystemProcesses() ([]SysProc, error) {
	procs, err := gpsproc.Processes()
	if err != nil {
		return nil, status.Wrap(status.ErrFail, err)
	}
	out := make([]SysProc, 0, len(procs))
	for _, p := range procs {
		sp := SysProc{Pid: uint64(p.Pid)}
		name, err := p.Name()
		if err != nil {
			continue // gone between enumeration and inspection
		}
		sp.Name = name
		if cl, err := p.Cmdline(); err == nil && cl != "" {
			sp.Cmdline = cl
		} else {
			sp.Cmdline = name
		}
		if u, err := p.Username(); err == nil {
			sp.Owner = u
		}
		if ct, err := p.CreateTime(); err == nil {
			sp.StartTime = ct / 1000
		}
		out = append(out, sp)
	}
	return out, nil
}
