// Package file guards the process pid file with an advisory lock so that two servers
// configured with the same pid file refuse to run side by side.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/linchenxuan/lobbyd/log"
)

var (
	// ErrLocked is returned by Acquire when another process holds the lock.
	ErrLocked = errors.New("file is locked by another process")

	_fileMode fs.FileMode = 0o600
)

// PIDLock is an exclusive lock on a pid file.
type PIDLock struct {
	path string
	file *os.File
}

// Acquire locks path without blocking and writes the current pid into it. The file is
// created when missing.
func Acquire(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, _fileMode)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, err = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("write pid failed")
		}
	}
	log.Info().Str("file", path).Int("pid", os.Getpid()).Msg("pid file locked")
	return &PIDLock{path: path, file: f}, nil
}

// Path returns the locked file.
func (l *PIDLock) Path() string {
	return l.path
}

// Release removes the pid file and drops the lock.
func (l *PIDLock) Release() error {
	defer l.file.Close()
	_ = os.Remove(l.path)
	return syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
}

// Holder returns the pid written in path.
func Holder(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}
