// Package envtable holds the per-agent user environment table. The table is
// seeded from the inherited environment when the agent initializes, mutated
// by write-variable requests, and snapshotted into every child launch so a
// variable written through the protocol is visible to later programs.
package envtable

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Table is the mutable environment map. It is owned by the event loop and
// not safe for concurrent use.
type Table struct {
	vars Var
}

func New() *Table {
	return &Table{vars: make(Var)}
}

// FromOS resets the table to the current process environment. Malformed
// entries and empty keys are skipped. Calling it again discards any
// variables written since the previous seed.
func (t *Table) FromOS() {
	t.FromList(os.Environ())
}

// FromList resets the table from an explicit "K=V" list.
func (t *Table) FromList(entries []string) {
	vars := make(Var, len(entries))
	for _, kv := range entries {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			if k == "" {
				continue
			}
			vars[k] = kv[i+1:]
		}
	}
	t.vars = vars
}

// Set records a variable. An empty key is ignored.
func (t *Table) Set(k, v string) {
	if k == "" {
		return
	}
	if t.vars == nil {
		t.vars = make(Var)
	}
	t.vars[k] = v
}

// Unset removes a variable.
func (t *Table) Unset(k string) {
	if t.vars != nil {
		delete(t.vars, k)
	}
}

// Lookup reports the value of k and whether it is present.
func (t *Table) Lookup(k string) (string, bool) {
	v, ok := t.vars[k]
	return v, ok
}

// Environ returns a sorted "K=V" snapshot. The slice is freshly allocated;
// callers may hand it straight to a child process.
func (t *Table) Environ() []string {
	out := make([]string, 0, len(t.vars))
	for k, v := range t.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of variables in the table.
func (t *Table) Len() int { return len(t.vars) }
