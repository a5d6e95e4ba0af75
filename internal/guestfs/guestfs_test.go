package guestfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

func newFS() *FS { return New(0, "", nil) }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDeleteFile(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "x")
	if err := f.DeleteFile(path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.DeleteFile(path); status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("second delete should be not-found, got %v", err)
	}
	if err := f.DeleteFile(dir); status.CodeOf(err) != status.ErrNotAFile {
		t.Fatalf("deleting a directory as a file, got %v", err)
	}
}

func TestDeleteFileDanglingSymlink(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	if err := os.Symlink(filepath.Join(dir, "gone"), link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := f.DeleteFile(link); err != nil {
		t.Fatalf("dangling symlink must be deletable: %v", err)
	}
}

func TestDeleteDirectories(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	sub := filepath.Join(dir, "tree")
	if err := os.MkdirAll(filepath.Join(sub, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, sub, "f", "x")
	if err := f.DeleteEmptyDirectory(sub); err == nil {
		t.Fatalf("non-empty directory deleted by the empty-only flavor")
	}
	if err := f.DeleteDirectory(sub); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatalf("tree still present")
	}
	empty := filepath.Join(dir, "empty")
	_ = os.Mkdir(empty, 0o755)
	if err := f.DeleteEmptyDirectory(empty); err != nil {
		t.Fatalf("empty delete: %v", err)
	}
	file := writeFile(t, dir, "plain", "x")
	if err := f.DeleteDirectory(file); status.CodeOf(err) != status.ErrNotADirectory {
		t.Fatalf("file via directory delete, got %v", err)
	}
}

func TestExists(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	file := writeFile(t, dir, "f", "x")
	if ok, err := f.FileExists(file); err != nil || !ok {
		t.Fatalf("FileExists(file) = %v, %v", ok, err)
	}
	if ok, _ := f.FileExists(dir); ok {
		t.Fatalf("a directory is not a file")
	}
	if ok, _ := f.FileExists(filepath.Join(dir, "missing")); ok {
		t.Fatalf("missing path reported present")
	}
	if ok, err := f.DirectoryExists(dir); err != nil || !ok {
		t.Fatalf("DirectoryExists(dir) = %v, %v", ok, err)
	}
	if ok, _ := f.DirectoryExists(file); ok {
		t.Fatalf("a file is not a directory")
	}
}

func TestMoveFile(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	src := writeFile(t, dir, "src", "body")
	dest := filepath.Join(dir, "dest")

	if err := f.MoveFile(request.Move{Src: src, Dest: src}, false); err != nil {
		t.Fatalf("same-path move must be a no-op: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("same-path move removed the file")
	}

	if err := f.MoveFile(request.Move{Src: src, Dest: dir}, false); status.CodeOf(err) != status.ErrAlreadyExists {
		t.Fatalf("dest-is-directory, got %v", err)
	}

	if err := f.MoveFile(request.Move{Src: src, Dest: dest}, false); err != nil {
		t.Fatalf("move: %v", err)
	}
	src2 := writeFile(t, dir, "src2", "new")
	if err := f.MoveFile(request.Move{Src: src2, Dest: dest}, true); status.CodeOf(err) != status.ErrAlreadyExists {
		t.Fatalf("Ex move without overwrite, got %v", err)
	}
	if err := f.MoveFile(request.Move{Src: src2, Dest: dest, Overwrite: true}, true); err != nil {
		t.Fatalf("Ex move with overwrite: %v", err)
	}
	body, _ := os.ReadFile(dest)
	if string(body) != "new" {
		t.Fatalf("overwrite kept old content %q", body)
	}

	if err := f.MoveFile(request.Move{Src: filepath.Join(dir, "nope"), Dest: dest}, false); status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("missing source, got %v", err)
	}
}

func TestMoveDirectory(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	src := filepath.Join(dir, "d1")
	_ = os.Mkdir(src, 0o755)
	writeFile(t, src, "f", "x")
	dest := filepath.Join(dir, "d2")
	if err := f.MoveDirectory(request.Move{Src: src, Dest: dest}); err != nil {
		t.Fatalf("move dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "f")); err != nil {
		t.Fatalf("content did not move: %v", err)
	}
	file := writeFile(t, dir, "plain", "x")
	if err := f.MoveDirectory(request.Move{Src: file, Dest: filepath.Join(dir, "x")}); status.CodeOf(err) != status.ErrNotADirectory {
		t.Fatalf("file as directory source, got %v", err)
	}
}

func TestCreateDirectory(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	path := filepath.Join(dir, "new")
	if err := f.CreateDirectory(request.CreateDirectory{Path: path}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.CreateDirectory(request.CreateDirectory{Path: path}); status.CodeOf(err) != status.ErrAlreadyExists {
		t.Fatalf("existing path, got %v", err)
	}
	deep := filepath.Join(dir, "a", "b", "c")
	if err := f.CreateDirectory(request.CreateDirectory{Path: deep}); err == nil {
		t.Fatalf("deep create without parents must fail")
	}
	if err := f.CreateDirectory(request.CreateDirectory{Path: deep, CreateParents: true}); err != nil {
		t.Fatalf("create with parents: %v", err)
	}
}

func TestCreateTemp(t *testing.T) {
	dir := t.TempDir()
	f := New(0, dir, nil)
	path, err := f.CreateTempFile(request.CreateTemp{Prefix: "pre_", Suffix: ".sh"})
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "pre_") || !strings.HasSuffix(base, ".sh") {
		t.Fatalf("pattern not honored: %q", base)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("configured temp dir not used: %q", path)
	}
	dpath, err := f.CreateTempDirectory(request.CreateTemp{Prefix: "d_"})
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	st, err := os.Stat(dpath)
	if err != nil || !st.IsDir() {
		t.Fatalf("temp dir missing: %v", err)
	}
	other := t.TempDir()
	path2, err := f.CreateTempFile(request.CreateTemp{Directory: other})
	if err != nil || filepath.Dir(path2) != other {
		t.Fatalf("explicit directory not honored: %q, %v", path2, err)
	}
}

func TestGetFileInfo(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	file := writeFile(t, dir, "f", "12345")
	rec, err := f.GetFileInfo(file)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(rec, "<FileSize>5</FileSize>") {
		t.Fatalf("size missing from %q", rec)
	}
	if !strings.Contains(rec, "<FileFlags>0</FileFlags>") {
		t.Fatalf("plain file flags wrong: %q", rec)
	}
	rec, err = f.GetFileInfo(dir)
	if err != nil || !strings.Contains(rec, "<FileFlags>1</FileFlags>") {
		t.Fatalf("directory flag missing: %q, %v", rec, err)
	}
	if _, err := f.GetFileInfo(filepath.Join(dir, "none")); status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("missing path, got %v", err)
	}
}

func TestSetFileAttributes(t *testing.T) {
	f := newFS()
	dir := t.TempDir()
	file := writeFile(t, dir, "f", "x")
	when := time.Now().Add(-time.Hour).Truncate(time.Second)
	err := f.SetFileAttributes(request.SetFileAttributes{
		Path:             file,
		AccessTime:       when.Unix(),
		ModificationTime: when.Unix(),
		SetTimes:         true,
		Permissions:      0o600,
		SetPermissions:   true,
	})
	if err != nil {
		t.Fatalf("set attributes: %v", err)
	}
	st, _ := os.Stat(file)
	if !st.ModTime().Equal(when) {
		t.Fatalf("mtime = %v, want %v", st.ModTime(), when)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %v", st.Mode().Perm())
	}
	err = f.SetFileAttributes(request.SetFileAttributes{Path: filepath.Join(dir, "none"), SetTimes: true})
	if status.CodeOf(err) != status.ErrNotFound {
		t.Fatalf("missing path, got %v", err)
	}
}
