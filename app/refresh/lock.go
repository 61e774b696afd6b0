package refresh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const LockFileName = ".refresh.lock"

var ErrRunLocked = errors.New("another refresh run holds the lock")

// RunLock serializes refresh runs across processes sharing a data
// directory.
type RunLock struct {
	path string
	lock *flock.Flock
}

func NewRunLock(dataDir string) *RunLock {
	path := filepath.Join(dataDir, LockFileName)
	return &RunLock{
		path: path,
		lock: flock.New(path),
	}
}

func (l *RunLock) Path() string {
	return l.path
}

// Run calls fn while holding the lock. It returns ErrRunLocked without
// calling fn when another holder has it.
func (l *RunLock) Run(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return ErrRunLocked
	}
	defer l.lock.Unlock()

	return fn()
}
