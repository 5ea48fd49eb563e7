package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// FileAppender writes entries to a file and rotates it once it exceeds the configured size.
// A rotated file is renamed to "<base><ext>.YYYYMMDD-HHMMSS".
type FileAppender struct {
	fileName  string
	splitSize int64
	lock      sync.Mutex
	fd        *os.File
	size      int64
	now       func() time.Time
}

// NewFileAppender opens (or creates) cfg.LogPath for appending.
func NewFileAppender(cfg *LogCfg) (*FileAppender, error) {
	a := &FileAppender{
		fileName:  cfg.LogPath,
		splitSize: int64(cfg.FileSplitMB) << 20,
		now:       time.Now,
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FileAppender) open() error {
	if err := os.MkdirAll(filepath.Dir(a.fileName), defaultDirMode); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	fd, err := os.OpenFile(a.fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFileMode)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	a.fd = fd
	a.size = st.Size()
	return nil
}

func (a *FileAppender) Write(buf []byte) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.fd == nil {
		return 0, os.ErrClosed
	}
	if a.splitSize > 0 && a.size > 0 && a.size+int64(len(buf)) > a.splitSize {
		if err := a.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := a.fd.Write(buf)
	a.size += int64(n)
	return n, err
}

func (a *FileAppender) rotate() error {
	if err := a.fd.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	a.fd = nil

	backup, err := backupFileName(a.fileName, a.now())
	if err != nil {
		return err
	}
	if err := os.Rename(a.fileName, backup); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}
	return a.open()
}

// Sync flushes the file to disk.
func (a *FileAppender) Sync() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fd == nil {
		return nil
	}
	return a.fd.Sync()
}

// Close syncs and closes the file. Later writes fail with os.ErrClosed.
func (a *FileAppender) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fd == nil {
		return nil
	}
	_ = a.fd.Sync()
	err := a.fd.Close()
	a.fd = nil
	return err
}

// backupFileName finds an unused rotated name, bumping the timestamp on collision.
func backupFileName(filePath string, now time.Time) (string, error) {
	ext := filepath.Ext(filePath)
	base := strings.TrimSuffix(filePath, ext)

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		name := fmt.Sprintf("%s%s.%s", base, ext, ts.Format("20060102-150405"))
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return name, nil
		} else if err != nil {
			return "", fmt.Errorf("check backup name: %w", err)
		}
	}
	return "", errors.New("cannot generate unique backup filename")
}
