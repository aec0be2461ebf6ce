//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package exfs

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sahrohit/exfs2/pkg/exferr"
)

// acquireLock takes a non-blocking exclusive advisory lock on path,
// creating it if necessary, so two Store.Open calls against the same
// volume directory in different processes fail fast instead of
// corrupting each other's segment files.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, exferr.NewStorageError(err, exferr.CodeIO, "opening lock file").
			WithDetail("path", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, exferr.NewStorageError(err, exferr.CodeIO, "volume already locked by another process").
			WithDetail("path", path)
	}
	return f, nil
}

// releaseLock unlocks and closes f.
func releaseLock(f *os.File) error {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}
