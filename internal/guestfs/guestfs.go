// Package guestfs implements the file and directory operations: delete,
// exists, move, create, temp files, attribute get/set and the listing
// operations with their bounded result buffers.
package guestfs

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// DefaultMaxResultSize bounds listing result buffers. Listings stop at the
// last whole record that fits.
const DefaultMaxResultSize = 61440

// FS executes filesystem operations. The zero value is not usable; use New.
type FS struct {
	maxResultSize int
	tempDir       string
	log           *slog.Logger
}

// New builds an FS. maxResultSize <= 0 selects the default; tempDir is the
// create-temp destination when a request names none (empty means the OS
// default).
func New(maxResultSize int, tempDir string, log *slog.Logger) *FS {
	if maxResultSize <= 0 {
		maxResultSize = DefaultMaxResultSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &FS{maxResultSize: maxResultSize, tempDir: tempDir, log: log}
}

// DeleteFile removes a single file. A dangling symlink is deletable; a
// directory is not a file.
func (f *FS) DeleteFile(path string) error {
	st, err := os.Lstat(path)
	if err != nil {
		return status.FromOS(err)
	}
	if st.IsDir() {
		return status.Errf(status.ErrNotAFile, "%q", path)
	}
	return status.FromOS(os.Remove(path))
}

// DeleteDirectory removes a directory tree recursively.
func (f *FS) DeleteDirectory(path string) error {
	if err := f.requireDirectory(path); err != nil {
		return err
	}
	return status.FromOS(os.RemoveAll(path))
}

// DeleteEmptyDirectory removes a directory only if it holds nothing.
func (f *FS) DeleteEmptyDirectory(path string) error {
	if err := f.requireDirectory(path); err != nil {
		return err
	}
	return status.FromOS(os.Remove(path))
}

// FileExists reports whether path names a regular file.
func (f *FS) FileExists(path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, status.FromOS(err)
	}
	return st.Mode().IsRegular(), nil
}

// DirectoryExists reports whether path names a directory.
func (f *FS) DirectoryExists(path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, status.FromOS(err)
	}
	return st.IsDir(), nil
}

// MoveFile renames src to dest. Moving a path onto itself succeeds without
// touching anything; a dest that is a directory is refused. The legacy
// flavor always overwrites an existing dest file; the Ex flavor overwrites
// only when asked to.
func (f *FS) MoveFile(body request.Move, ex bool) error {
	if _, err := os.Lstat(body.Src); err != nil {
		return status.FromOS(err)
	}
	if body.Src == body.Dest {
		return nil
	}
	if st, err := os.Stat(body.Dest); err == nil {
		if st.IsDir() {
			return status.Errf(status.ErrAlreadyExists, "destination %q is a directory", body.Dest)
		}
		if ex && !body.Overwrite {
			return status.Errf(status.ErrAlreadyExists, "%q", body.Dest)
		}
	}
	return status.FromOS(os.Rename(body.Src, body.Dest))
}

// MoveDirectory renames a directory. The source must be a directory and the
// destination must not exist unless overwrite is requested.
func (f *FS) MoveDirectory(body request.Move) error {
	if err := f.requireDirectory(body.Src); err != nil {
		return err
	}
	if body.Src == body.Dest {
		return nil
	}
	if _, err := os.Stat(body.Dest); err == nil {
		if !body.Overwrite {
			return status.Errf(status.ErrAlreadyExists, "%q", body.Dest)
		}
		if err := os.RemoveAll(body.Dest); err != nil {
			return status.FromOS(err)
		}
	}
	return status.FromOS(os.Rename(body.Src, body.Dest))
}

// CreateDirectory makes a directory, optionally with parents. An existing
// path of any kind is already-exists.
func (f *FS) CreateDirectory(body request.CreateDirectory) error {
	if _, err := os.Stat(body.Path); err == nil {
		return status.Errf(status.ErrAlreadyExists, "%q", body.Path)
	}
	if body.CreateParents {
		return status.FromOS(os.MkdirAll(body.Path, 0o755))
	}
	return status.FromOS(os.Mkdir(body.Path, 0o755))
}

// CreateTempFile creates an empty, exclusively owned file and returns its
// path.
func (f *FS) CreateTempFile(body request.CreateTemp) (string, error) {
	dir := f.resolveTempDir(body.Directory)
	file, err := os.CreateTemp(dir, body.Prefix+"*"+body.Suffix)
	if err != nil {
		return "", status.FromOS(err)
	}
	path := file.Name()
	if err := file.Close(); err != nil {
		return "", status.FromOS(err)
	}
	return path, nil
}

// CreateTempDirectory creates a private directory and returns its path.
func (f *FS) CreateTempDirectory(body request.CreateTemp) (string, error) {
	dir := f.resolveTempDir(body.Directory)
	path, err := os.MkdirTemp(dir, body.Prefix+"*"+body.Suffix)
	if err != nil {
		return "", status.FromOS(err)
	}
	return path, nil
}

// GetFileInfo renders the basic info record for one path.
func (f *FS) GetFileInfo(path string) (string, error) {
	if _, err := os.Lstat(path); err != nil {
		return "", status.FromOS(err)
	}
	return formatFileInfo(path, path), nil
}

// SetFileAttributes applies the selected attribute groups. Each group is
// applied independently; the first failure stops the operation.
func (f *FS) SetFileAttributes(body request.SetFileAttributes) error {
	if _, err := os.Stat(body.Path); err != nil {
		return status.FromOS(err)
	}
	if body.SetTimes {
		at := time.Unix(body.AccessTime, 0)
		mt := time.Unix(body.ModificationTime, 0)
		if err := os.Chtimes(body.Path, at, mt); err != nil {
			return status.FromOS(err)
		}
	}
	if body.SetPermissions {
		if err := os.Chmod(body.Path, os.FileMode(body.Permissions)&os.ModePerm); err != nil {
			return status.FromOS(err)
		}
	}
	if body.SetOwner {
		if err := os.Chown(body.Path, body.OwnerID, body.GroupID); err != nil {
			return status.FromOS(err)
		}
	}
	return nil
}

func (f *FS) requireDirectory(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return status.FromOS(err)
	}
	if !st.IsDir() {
		return status.Errf(status.ErrNotADirectory, "%q", path)
	}
	return nil
}

func (f *FS) resolveTempDir(requested string) string {
	if requested != "" {
		return requested
	}
	if f.tempDir != "" {
		return f.tempDir
	}
	return os.TempDir()
}

// join builds a child path the way listings do.
func join(dir, name string) string { return filepath.Join(dir, name) }
