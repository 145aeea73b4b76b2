package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/steamstats/steamstats/pkg/series"
)

// lockRetryDelay is how often a contended lock is retried.
const lockRetryDelay = 100 * time.Millisecond

var (
	// ErrEmpty is returned by Read when no history has been written yet.
	ErrEmpty = errors.New("history is empty")

	// ErrLocked is returned by Lock when another process holds the lock for
	// longer than the timeout.
	ErrLocked = errors.New("history is locked by another run")
)

// Store reads and writes one CSV history file.
type Store struct {
	path string
	lock *flock.Flock
}

// New returns a Store for the file at path. The file and its directory are
// created on the first Write.
func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the history file path.
func (s *Store) Path() string { return s.path }

// Read loads the history. A missing or zero-length file yields ErrEmpty; a
// file holding only a header yields a table with columns and no rows.
func (s *Store) Read() (*series.Table, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("history: stat %s: %w", s.path, err)
	}
	if info.Size() == 0 {
		return nil, ErrEmpty
	}

	t, err := series.ReadCSV(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", s.path, err)
	}
	return t, nil
}

// Write replaces the history with t. On any error the previous file is left
// untouched.
func (s *Store) Write(t *series.Table) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := t.WriteCSV(w); err != nil {
		return fmt.Errorf("history: encode %s: %w", s.path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("history: flush %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("history: sync %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: close %s: %w", s.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("history: chmod %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("history: replace %s: %w", s.path, err)
	}

	slog.Debug("history: written", "path", s.path, "rows", t.Len())
	return nil
}

// Lock acquires the exclusive lock for this history, waiting up to timeout.
// The returned func releases it. A non-positive timeout tries exactly once.
func (s *Store) Lock(ctx context.Context, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}

	var (
		ok  bool
		err error
	)
	if timeout <= 0 {
		ok, err = s.lock.TryLock()
	} else {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err = s.lock.TryLockContext(lctx, lockRetryDelay)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("history: lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("history: lock %s: %w", s.lock.Path(), ErrLocked)
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("history: unlock failed", "path", s.lock.Path(), "err", err)
		}
	}, nil
}
