package guestfs

import (
	"os"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// truncation flag protocol: listings that support resumption start with
// '1' + space when entries were dropped for space, '0' + space otherwise.
const (
	resultComplete  = "0 "
	resultTruncated = "1 "
)

// ListDirectory lists dirPathName entries as basic info records, starting at
// Offset. Only whole records are emitted; when the budget runs out the
// result carries the truncated prefix so the host can re-issue with a larger
// offset. Legacy requests (UseOffset false) get no prefix and start at zero.
func (f *FS) ListDirectory(body request.ListDirectory) (string, error) {
	if body.Path == "" {
		return "", status.Errf(status.ErrInvalidArg, "empty directory path")
	}
	if err := f.requireDirectory(body.Path); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(body.Path)
	if err != nil {
		return "", status.FromOS(err)
	}
	offset := 0
	if body.UseOffset {
		offset = int(body.Offset)
	}

	var b strings.Builder
	budget := f.maxResultSize
	if body.UseOffset {
		budget -= len(resultComplete)
	}
	truncated := false
	for i := offset; i < len(entries); i++ {
		rec := formatFileInfo(join(body.Path, entries[i].Name()), entries[i].Name())
		if b.Len()+len(rec) > budget {
			truncated = true
			break
		}
		b.WriteString(rec)
	}
	if !body.UseOffset {
		return b.String(), nil
	}
	prefix := resultComplete
	if truncated {
		prefix = resultTruncated
	}
	return prefix + b.String(), nil
}

// ListFiles lists extended info records with offset/index resumption, an
// optional name pattern and a cap on returned entries. A path naming a
// single file lists just that file. The truncation prefix is always present.
func (f *FS) ListFiles(body request.ListFiles) (string, error) {
	if body.Path == "" {
		return "", status.Errf(status.ErrInvalidArg, "empty path")
	}
	var pattern *regexp.Regexp
	if body.Pattern != "" {
		var err error
		pattern, err = regexp.Compile(body.Pattern)
		if err != nil {
			return "", status.Errf(status.ErrInvalidArg, "bad pattern %q", body.Pattern)
		}
	}

	var names []string
	singleFile := false
	st, err := os.Stat(body.Path)
	switch {
	case err == nil && st.IsDir():
		entries, err := os.ReadDir(body.Path)
		if err != nil {
			return "", status.FromOS(err)
		}
		names = make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
	case err == nil:
		singleFile = true
		names = []string{body.Path}
	default:
		return "", status.FromOS(err)
	}

	maxResults := int(body.MaxResults)
	if maxResults <= 0 {
		maxResults = len(names)
	}
	start := int(body.Offset) + int(body.Index)
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	budget := f.maxResultSize - len(resultComplete)
	truncated := false
	count := 0
	for i := start; i < len(names) && count < maxResults; i++ {
		if pattern != nil && !pattern.MatchString(names[i]) {
			continue
		}
		path := names[i]
		if !singleFile {
			path = join(body.Path, names[i])
		}
		rec := formatFileExtendedInfo(path, names[i])
		if b.Len()+len(rec) > budget {
			truncated = true
			break
		}
		b.WriteString(rec)
		count++
	}
	prefix := resultComplete
	if truncated {
		prefix = resultTruncated
	}
	return prefix + b.String(), nil
}

// ListFileSystems renders one record per mounted filesystem. Mounts whose
// usage cannot be read report zero sizes rather than failing the listing.
func (f *FS) ListFileSystems() (string, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return "", status.Wrap(status.ErrFail, err)
	}
	var b strings.Builder
	for _, p := range parts {
		var total, free uint64
		if u, err := disk.Usage(p.Mountpoint); err == nil {
			total = u.Total
			free = u.Free
		} else {
			f.log.Debug("filesystem usage unavailable", "mount", p.Mountpoint, "error", err)
		}
		rec := FormatFilesystem(p.Mountpoint, total, free, p.Fstype)
		if b.Len()+len(rec) > f.maxResultSize {
			break
		}
		b.WriteString(rec)
	}
	return b.String(), nil
}
