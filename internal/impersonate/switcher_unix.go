//go:build !windows

package impersonate

import (
	"fmt"
	"os"
	"syscall"
)

// UnixSwitcher changes the effective uid/gid of the agent for the duration
// of one request. It only works when the agent runs privileged; Begin fails
// otherwise. The runtime applies the id change to all threads, so the Gate's
// strict Begin/End pairing is what keeps requests from observing a foreign
// identity.
type UnixSwitcher struct {
	savedUID int
	savedGID int
}

func NewUnixSwitcher() *UnixSwitcher { return &UnixSwitcher{} }

func (s *UnixSwitcher) Begin(id Identity) error {
	s.savedUID = os.Geteuid()
	s.savedGID = os.Getegid()
	// Group first while we still hold the privilege to change it.
	if err := syscall.Setegid(int(id.GID)); err != nil {
		return fmt.Errorf("setegid %d: %w", id.GID, err)
	}
	if err := syscall.Seteuid(int(id.UID)); err != nil {
		_ = syscall.Setegid(s.savedGID)
		return fmt.Errorf("seteuid %d: %w", id.UID, err)
	}
	return nil
}

func (s *UnixSwitcher) End() {
	_ = syscall.Seteuid(s.savedUID)
	_ = syscall.Setegid(s.savedGID)
}
