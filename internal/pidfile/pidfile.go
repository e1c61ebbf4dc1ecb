package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ErrAlreadyLocked is returned when another live process owns the PID file.
var ErrAlreadyLocked = errors.New("another instance of this service is already running")

// filePermissions lets the owner write the PID file and everyone read it.
const filePermissions = 0o644

// Lock is a held PID file.
type Lock struct {
	// path is the PID file location.
	path string
	// pid is the process that owns the lock.
	pid int
}

// processAlive reports whether a process with the given PID exists.
func processAlive(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

// Acquire creates <dir>/<name>.pid holding the current PID.
func Acquire(dir, name string) (*Lock, error) {
	path := filepath.Join(dir, name+".pid")
	pid := os.Getpid()

	for range 2 {
		err := create(path, pid)
		if err == nil {
			return &Lock{path: path, pid: pid}, nil
		}

		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		owner, err := readOwner(path)
		if err == nil && owner != pid {
			alive, lookupErr := processAlive(owner)
			if lookupErr != nil {
				return nil, fmt.Errorf("look up process %d: %w", owner, lookupErr)
			}

			if alive {
				return nil, fmt.Errorf("%s is held by pid %d: %w", path, owner, ErrAlreadyLocked)
			}
		}

		// Stale, unreadable or our own file: reclaim it and retry once.
		if err = os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale pid file: %w", err)
		}
	}

	return nil, fmt.Errorf("%s: %w", path, ErrAlreadyLocked)
}

// Path returns the PID file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the PID file if it still belongs to this lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	owner, err := readOwner(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	if owner != l.pid {
		return nil
	}

	if err = os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}

	return nil
}

// create writes pid into a new file at path, failing if it already exists.
func create(path string, pid int) error {
	file, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return fmt.Errorf("create pid file: %w", err)
	}

	if _, err = file.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write pid file: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close pid file: %w", err)
	}

	return nil
}

// readOwner returns the PID stored at path.
func readOwner(path string) (int, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}

	return pid, nil
}
