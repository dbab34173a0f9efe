// Package reliability keeps runs safe to repeat: a PID lock so only one
// orchestrator runs at a time, an object-storage archive of the report
// cache, and periodic store maintenance.
package reliability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrLocked means another live process holds the lock.
var ErrLocked = errors.New("another instance is running")

// unreadable lock files younger than this are treated as held
const unreadableGrace = time.Minute

// PIDLock is a single-instance lock backed by a file holding the owner's
// PID. A lock file left behind by a dead process is taken over.
type PIDLock struct {
	path string
	pid  int
}

// DefaultLockPath returns the lock file of name in the OS temp directory.
func DefaultLockPath(name string) string {
	return filepath.Join(os.TempDir(), name+".pid")
}

// NewPIDLock creates a lock at path. Nothing is held until Acquire.
func NewPIDLock(path string) *PIDLock {
	return &PIDLock{path: path, pid: os.Getpid()}
}

// Path returns the lock file path.
func (l *PIDLock) Path() string {
	return l.path
}

// Acquire takes the lock or returns ErrLocked. The PID is written to a
// temporary file that is then hard-linked into place, so the lock file is
// never seen without its owner.
func (l *PIDLock) Acquire() error {
	tmp, err := l.writeTemp()
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmp, l.path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("failed to create lock file %s: %w", l.path, err)
		}

		owner, held := l.owner()
		if held {
			return fmt.Errorf("%w (pid %d, lock %s)", ErrLocked, owner, l.path)
		}
		// stale
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale lock %s: %w", l.path, err)
		}
	}
	return fmt.Errorf("%w (lock %s keeps reappearing)", ErrLocked, l.path)
}

func (l *PIDLock) writeTemp() (string, error) {
	f, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create lock file %s: %w", l.path, err)
	}
	_, werr := f.WriteString(strconv.Itoa(l.pid))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write lock file %s: %w", l.path, errors.Join(werr, cerr))
	}
	return f.Name(), nil
}

// Release drops the lock if this process holds it.
func (l *PIDLock) Release() error {
	owner, err := readPID(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if owner != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return nil
}

// owner returns the PID in the lock file and whether the lock is held. An
// unreadable file is held until it is older than unreadableGrace, then
// stale.
func (l *PIDLock) owner() (int, bool) {
	pid, err := readPID(l.path)
	if err != nil || pid <= 0 {
		info, serr := os.Stat(l.path)
		return 0, serr == nil && time.Since(info.ModTime()) < unreadableGrace
	}
	if pid == l.pid {
		return pid, true
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return pid, false
	}
	return pid, alive
}

func readPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file %s: %w", path, err)
	}
	return pid, nil
}
