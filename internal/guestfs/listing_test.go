package guestfs

import (
	"strings"
	"testing"

	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

func populate(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		writeFile(t, dir, "file"+string(rune('a'+i)), "content")
	}
	return dir
}

func TestListDirectoryComplete(t *testing.T) {
	f := newFS()
	dir := populate(t, 3)
	out, err := f.ListDirectory(request.ListDirectory{Path: dir, UseOffset: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, resultComplete) {
		t.Fatalf("missing complete prefix: %q", out)
	}
	if got := strings.Count(out, "<FileInfo>"); got != 3 {
		t.Fatalf("records = %d, want 3", got)
	}
}

func TestListDirectoryLegacyNoPrefix(t *testing.T) {
	f := newFS()
	dir := populate(t, 2)
	out, err := f.ListDirectory(request.ListDirectory{Path: dir})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.HasPrefix(out, resultComplete) || strings.HasPrefix(out, resultTruncated) {
		t.Fatalf("legacy listing must not carry a truncation prefix: %q", out)
	}
	if !strings.HasPrefix(out, "<FileInfo>") {
		t.Fatalf("unexpected leading bytes: %q", out)
	}
}

func TestListDirectoryTruncationAndOffset(t *testing.T) {
	// Budget for roughly one record only: whole entries, never fragments.
	f := New(120, "", nil)
	dir := populate(t, 5)
	out, err := f.ListDirectory(request.ListDirectory{Path: dir, UseOffset: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, resultTruncated) {
		t.Fatalf("expected truncated prefix: %q", out)
	}
	first := strings.Count(out, "<FileInfo>")
	if first == 0 || first >= 5 {
		t.Fatalf("truncated listing returned %d records", first)
	}
	if !strings.HasSuffix(out, "</FileInfo>") {
		t.Fatalf("record fragment emitted: %q", out)
	}

	// Resume from the offset and collect the rest.
	total := first
	offset := int64(first)
	for i := 0; i < 10 && total < 5; i++ {
		out, err = f.ListDirectory(request.ListDirectory{Path: dir, UseOffset: true, Offset: offset})
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		n := strings.Count(out, "<FileInfo>")
		if n == 0 {
			t.Fatalf("no progress at offset %d", offset)
		}
		total += n
		offset += int64(n)
	}
	if total != 5 {
		t.Fatalf("resumed listing saw %d records, want 5", total)
	}
}

func TestListDirectoryErrors(t *testing.T) {
	f := newFS()
	if _, err := f.ListDirectory(request.ListDirectory{Path: ""}); status.CodeOf(err) != status.ErrInvalidArg {
		t.Fatalf("empty path, got %v", err)
	}
	if _, err := f.ListDirectory(request.ListDirectory{Path: "/no/such/dir"}); status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("missing dir, got %v", err)
	}
	file := writeFile(t, t.TempDir(), "f", "x")
	if _, err := f.ListDirectory(request.ListDirectory{Path: file}); status.CodeOf(err) != status.ErrNotADirectory {
		t.Fatalf("file path, got %v", err)
	}
}

func TestListFilesPattern(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	writeFile(t, dir, "app.log", "x")
	writeFile(t, dir, "app.conf", "x")
	writeFile(t, dir, "notes.txt", "x")
	out, err := f.ListFiles(request.ListFiles{Path: dir, Pattern: `\.log$`})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := strings.Count(out, "<fxi>"); got != 1 {
		t.Fatalf("pattern matched %d records: %q", got, out)
	}
	if !strings.Contains(out, "<Name>app.log</Name>") {
		t.Fatalf("wrong match: %q", out)
	}
	if _, err := f.ListFiles(request.ListFiles{Path: dir, Pattern: "("}); status.CodeOf(err) != status.ErrInvalidArg {
		t.Fatalf("bad pattern, got %v", err)
	}
}

func TestListFilesSingleFile(t *testing.T) {
	f := newFS()
	file := writeFile(t, t.TempDir(), "solo", "hello")
	out, err := f.ListFiles(request.ListFiles{Path: file})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, resultComplete) {
		t.Fatalf("missing prefix: %q", out)
	}
	if strings.Count(out, "<fxi>") != 1 || !strings.Contains(out, "<fs>5</fs>") {
		t.Fatalf("single-file record wrong: %q", out)
	}
}

func TestListFilesMaxResults(t *testing.T) {
	f := newFS()
	dir := populate(t, 5)
	out, err := f.ListFiles(request.ListFiles{Path: dir, MaxResults: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := strings.Count(out, "<fxi>"); got != 2 {
		t.Fatalf("maxResults ignored, got %d records", got)
	}
	out, err = f.ListFiles(request.ListFiles{Path: dir, MaxResults: 2, Index: 2})
	if err != nil {
		t.Fatalf("list with index: %v", err)
	}
	if got := strings.Count(out, "<fxi>"); got != 2 {
		t.Fatalf("index window wrong, got %d records", got)
	}
}

func TestListFilesMissingPath(t *testing.T) {
	f := newFS()
	if _, err := f.ListFiles(request.ListFiles{Path: "/no/such/path"}); status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("missing path, got %v", err)
	}
}

func TestListFileSystems(t *testing.T) {
	f := newFS()
	out, err := f.ListFileSystems()
	if err != nil {
		t.Fatalf("list filesystems: %v", err)
	}
	if !strings.Contains(out, "<filesystem>") {
		t.Skipf("no mounted filesystems visible: %q", out)
	}
	if !strings.Contains(out, "<name>") || !strings.Contains(out, "<type>") {
		t.Fatalf("record fields missing: %.200q", out)
	}
}

func TestExtendedInfoOwnership(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "owned", "x")
	rec := formatFileExtendedInfo(file, "owned")
	if !strings.Contains(rec, "<uid>") || !strings.Contains(rec, "<perm>") {
		t.Fatalf("extended fields missing: %q", rec)
	}
	if !strings.Contains(rec, "<Name>owned</Name>") {
		t.Fatalf("name missing: %q", rec)
	}
}
