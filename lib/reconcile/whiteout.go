package reconcile

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// isWhiteout reports whether a directory entry is an overlayfs whiteout
// marker: a character-device special file whose device number is 0. This
// mirrors the archive layer's use of raw device metadata rather than
// pulling in a dedicated overlayfs library; unix.Major/Minor decode the
// device number the same way the kernel's overlayfs driver does.
func isWhiteout(info os.FileInfo) bool {
	if info.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	rdev := uint64(sys.Rdev)
	return unix.Major(rdev) == 0 && unix.Minor(rdev) == 0
}
