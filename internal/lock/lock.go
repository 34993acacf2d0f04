package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Holder describes the daemon that owns a session directory. It is written
// into the lock file so clients can find the daemon's HTTP address.
type Holder struct {
	PID      int
	Started  time.Time
	HTTPAddr string
}

// HeldError is returned when another process holds the session lock.
type HeldError struct {
	Holder Holder
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session lock held by PID %d (%s)", e.Holder.PID, e.Path)
}

// Lock represents an acquired session lock file.
type Lock struct {
	file   *os.File
	path   string
	holder Holder
}

// Acquire takes an exclusive flock on the session directory's lock file and
// records h in it. Returns *HeldError if another process already holds it.
func Acquire(sessionDir string, h Holder) (*Lock, error) {
	lockPath := filepath.Join(sessionDir, fileName)

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &HeldError{Holder: parseHolder(string(data)), Path: lockPath}
	}

	if h.PID == 0 {
		h.PID = os.Getpid()
	}
	if h.Started.IsZero() {
		h.Started = time.Now()
	}
	if err := writeHolder(f, h); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath, holder: h}, nil
}

// Inspect reports who holds the session lock, if anyone. A stale lock file
// left behind by a dead process is reported as not held.
func Inspect(sessionDir string) (*Holder, bool, error) {
	lockPath := filepath.Join(sessionDir, fileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return nil, false, nil
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, false, err
	}
	h := parseHolder(string(data))
	return &h, true, nil
}

// Record rewrites the holder details, e.g. once the HTTP listener is bound.
// Zero fields keep their recorded values.
func (l *Lock) Record(h Holder) error {
	if l == nil || l.file == nil {
		return errors.New("lock not held")
	}
	if h.PID == 0 {
		h.PID = l.holder.PID
	}
	if h.Started.IsZero() {
		h.Started = l.holder.Started
	}
	if err := writeHolder(l.file, h); err != nil {
		return err
	}
	l.holder = h
	return nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\ntime=%s\nhttp=%s\n", h.PID, h.Started.UTC().Format(time.RFC3339), h.HTTPAddr)
	_, err := f.WriteString(content)
	return err
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "time":
			h.Started, _ = time.Parse(time.RFC3339, value)
		case "http":
			h.HTTPAddr = value
		}
	}
	return h
}
