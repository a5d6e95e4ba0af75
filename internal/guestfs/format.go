package guestfs

import (
	"fmt"
	"os"
	"syscall"

	"github.com/loykin/guestexec/internal/procreg"
)

// File attribute bits carried in listing records.
const (
	AttrDirectory = 0x0001
	AttrSymlink   = 0x0002
)

// Record formats are tag-delimited strings assembled from fixed templates.
// The host side indexes into the concatenated result by scanning tags, so
// field order is part of the protocol.
const (
	fileInfoFormat = "<FileInfo>" +
		"<Name>%s</Name>" +
		"<FileFlags>%d</FileFlags>" +
		"<FileSize>%d</FileSize>" +
		"<ModTime>%d</ModTime>" +
		"</FileInfo>"

	fileExtendedInfoFormat = "<fxi>" +
		"<Name>%s</Name>" +
		"<ft>%d</ft>" +
		"<fs>%d</fs>" +
		"<mt>%d</mt>" +
		"<ct>%d</ct>" +
		"<at>%d</at>" +
		"<uid>%d</uid>" +
		"<gid>%d</gid>" +
		"<perm>%d</perm>" +
		"</fxi>"

	procFormat = "<proc><name>%s</name><pid>%d</pid>" +
		"<user>%s</user><start>%d</start></proc>"

	procExFormat = "<proc><name>%s</name><pid>%d</pid>" +
		"<user>%s</user><start>%d</start>" +
		"<eCode>%d</eCode><eTime>%d</eTime>" +
		"</proc>"

	filesystemFormat = "<filesystem>" +
		"<name>%s</name>" +
		"<size>%d</size>" +
		"<freeSpace>%d</freeSpace>" +
		"<type>%s</type>" +
		"</filesystem>"

	envVarFormat = "<ev>%s=%s</ev>"
)

// FormatProc renders a live process-table row.
func FormatProc(name string, pid uint64, user string, startTime int64) string {
	return fmt.Sprintf(procFormat, name, pid, user, startTime)
}

// FormatProcEx renders a registry record. Live rows use zero exit fields so
// the host can mix running and exited entries in one listing.
func FormatProcEx(rec procreg.Record) string {
	var eCode int32
	var eTime int64
	if !rec.Running {
		eCode = rec.ExitCode
		eTime = rec.EndTime
	}
	return fmt.Sprintf(procExFormat, rec.Name, rec.Pid, rec.User, rec.StartTime, eCode, eTime)
}

// FormatProcExLive renders a system-table row in the extended format with
// dummy exit fields.
func FormatProcExLive(name string, pid uint64, user string, startTime int64) string {
	return fmt.Sprintf(procExFormat, name, pid, user, startTime, 0, 0)
}

// FormatEnvVar renders one environment entry.
func FormatEnvVar(key, value string) string {
	return fmt.Sprintf(envVarFormat, key, value)
}

// FormatFilesystem renders one mounted filesystem.
func FormatFilesystem(name string, size, free uint64, fsType string) string {
	return fmt.Sprintf(filesystemFormat, name, size, free, fsType)
}

// fileFlags derives the attribute bits for a path. Directories win over the
// symlink bit; a symlink to a directory reports as a directory.
func fileFlags(path string) (flags int32, size int64) {
	st, err := os.Stat(path)
	if err == nil && st.IsDir() {
		return AttrDirectory, 0
	}
	if lst, lerr := os.Lstat(path); lerr == nil && lst.Mode()&os.ModeSymlink != 0 {
		flags |= AttrSymlink
	}
	if err == nil && st.Mode().IsRegular() {
		size = st.Size()
	}
	return flags, size
}

// formatFileInfo renders the basic listing record for path. name is the
// display name, which differs from path for directory entries.
func formatFileInfo(path, name string) string {
	flags, size := fileFlags(path)
	var modTime int64
	if st, err := os.Stat(path); err == nil {
		modTime = st.ModTime().Unix()
	}
	return fmt.Sprintf(fileInfoFormat, name, flags, size, modTime)
}

// formatFileExtendedInfo renders the extended record with ownership and
// permission fields. Stat failures leave the numeric fields zero rather
// than failing the listing.
func formatFileExtendedInfo(path, name string) string {
	flags, size := fileFlags(path)
	var mt, ct, at int64
	var uid, gid uint32
	var perm uint32
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err == nil {
		mt = st.Mtim.Sec
		ct = st.Ctim.Sec
		at = st.Atim.Sec
		uid = st.Uid
		gid = st.Gid
		perm = st.Mode
	}
	return fmt.Sprintf(fileExtendedInfoFormat, name, flags, size, mt, ct, at, uid, gid, perm)
}
