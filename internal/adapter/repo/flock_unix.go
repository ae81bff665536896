//go:build unix

package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	lockShared    = unix.LOCK_SH
	lockExclusive = unix.LOCK_EX
)

// fileLock is an acquired flock on a per-id lock file.
type fileLock struct {
	f    *os.File
	path string
}

// acquireLock takes a flock of the given kind on path, creating the file if
// needed. Lock files may be unlinked by a holder of the exclusive lock, so
// after each acquisition the path is checked to still name the locked inode;
// if it does not, the stale handle is dropped and acquisition starts over.
func acquireLock(ctx context.Context, path string, how int) (*fileLock, error) {
	backoff := time.Millisecond
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock: %w", err)
		}
		fd := int(f.Fd())

		for {
			err = unix.Flock(fd, how|unix.LOCK_NB)
			if err == nil {
				break
			}
			if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
				_ = f.Close()
				return nil, fmt.Errorf("flock: %w", err)
			}
			select {
			case <-ctx.Done():
				_ = f.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 50*time.Millisecond {
				backoff *= 2
			}
		}

		same, err := sameInode(f, path)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if same {
			return &fileLock{f: f, path: path}, nil
		}
		// closing the descriptor releases the flock
		_ = f.Close()
	}
}

func sameInode(f *os.File, path string) (bool, error) {
	var held, current unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &held); err != nil {
		return false, fmt.Errorf("fstat lock: %w", err)
	}
	if err := unix.Stat(path, &current); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, fmt.Errorf("stat lock: %w", err)
	}
	return held.Dev == current.Dev && held.Ino == current.Ino, nil
}

// unlink removes the lock file while it is still held. Only valid under an
// exclusive lock.
func (l *fileLock) unlink() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
