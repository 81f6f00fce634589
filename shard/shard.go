// Package shard implements external sort and the three sharder
// disciplines (by sequence, by item, by hash), plus the pass-through
// "intermediate" variants. All disk-backed operators in this package share
// a temp-directory-ownership convention: the pipe that creates a temp
// directory removes it in Close, named "<prefix>-<uuid>" to avoid
// collisions across concurrently running jobs.
package shard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ID identifies a shard: a position within a fixed-size partition.
type ID struct {
	Index int
	Count int
}

func (s ID) String() string { return fmt.Sprintf("%d/%d", s.Index, s.Count) }

// Counts is the per-shard-key item count the sharders expose after being
// drained, keyed by the classifier's string output.
type Counts map[string]int64

// NewTempDir creates a fresh temp directory named "<prefix>-<uuid>" under
// base (os.TempDir() if base is empty) and returns its path. Callers own
// removing it (typically via RemoveTempDir in Close).
func NewTempDir(base, prefix string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, fmt.Sprintf("%s-%s", prefix, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// RemoveTempDir removes dir and everything under it, swallowing a
// not-exist error (Close must be idempotent and safe on a never-created
// or already-removed directory).
func RemoveTempDir(dir string) error {
	if dir == "" {
		return nil
	}
	err := os.RemoveAll(dir)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
