package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/guestexec/internal/metrics"
	"github.com/loykin/guestexec/internal/procreg"
)

func testRouter(recs []procreg.Record) *Router {
	return NewRouter(func() []procreg.Record { return recs }, "9.9.9", "")
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"/":      "",
		"debug":  "/debug",
		"/d/":    "/d",
		" /d// ": "/d",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHealthzAndVersion(t *testing.T) {
	h := testRouter(nil).Handler()
	if w := get(t, h, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	w := get(t, h, "/version")
	var v versionResp
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil || v.Version != "9.9.9" {
		t.Fatalf("version = %q err = %v", w.Body.String(), err)
	}
}

func TestProcessesListAndLookup(t *testing.T) {
	recs := []procreg.Record{
		{Pid: 10, Name: "builder", User: "alice", StartTime: 100, Running: true},
		{Pid: 20, Name: "backup", User: "bob", StartTime: 50, EndTime: 80, ExitCode: 2},
	}
	h := testRouter(recs).Handler()

	w := get(t, h, "/processes")
	var list []processInfo
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("list = %s err = %v", w.Body.String(), err)
	}

	w = get(t, h, "/processes?pid=20")
	var one processInfo
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if one.Pid != 20 || one.ExitCode != 2 || one.Running {
		t.Fatalf("record = %+v", one)
	}

	if w := get(t, h, "/processes?pid=999"); w.Code != http.StatusNotFound {
		t.Fatalf("missing pid = %d", w.Code)
	}
	if w := get(t, h, "/processes?pid=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad pid = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	metrics.IncRequest("ListProcesses", "OK")
	h := testRouter(nil).Handler()
	w := get(t, h, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "guestexec") {
		t.Fatalf("metrics = %d body prefix %q", w.Code, w.Body.String()[:min(80, w.Body.Len())])
	}
}

func TestBasePathMounting(t *testing.T) {
	h := NewRouter(func() []procreg.Record { return nil }, "1", "debug").Handler()
	if w := get(t, h, "/debug/healthz"); w.Code != http.StatusOK {
		t.Fatalf("mounted healthz = %d", w.Code)
	}
	if w := get(t, h, "/healthz"); w.Code == http.StatusOK {
		t.Fatalf("unmounted path must not serve")
	}
}
