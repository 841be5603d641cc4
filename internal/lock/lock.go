package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrHeld means another watchdog for the same channel is running.
var ErrHeld = errors.New("lock held by another process")

// Lock is an advisory, exclusive, per-channel lock held for the life of
// the process. The kernel drops it if the process dies.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file location for channel.
func Path(dir, channel string) string {
	return filepath.Join(dir, channel+"_udpwatch.lock")
}

// Acquire takes the channel lock without blocking.
func Acquire(dir, channel string) (*Lock, error) {
	if channel == "" || strings.ContainsAny(channel, `/\`) || channel == "." || channel == ".." {
		return nil, fmt.Errorf("invalid channel name %q", channel)
	}
	path := Path(dir, channel)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrHeld)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Lock{file: file, path: path}, nil
}

// Release unlocks and closes the lock file. The file itself is left in
// place so a concurrent Acquire never races on a fresh inode.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}
