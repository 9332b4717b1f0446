package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultMaxAge is how long a session directory is retained.
	DefaultMaxAge = 7 * 24 * time.Hour

	// DefaultMaxSessions caps the number of retained session directories.
	DefaultMaxSessions = 100
)

// Prune removes session directories older than maxAge, then the oldest
// directories beyond maxSessions. Directories are ordered by name, which
// sorts by creation time. A non-positive limit disables that rule. The
// number of removed directories is returned.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration,
	maxSessions int) (int, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.SessionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read sessions dir: %w", err)
	}

	var dirs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry)
		}
	}
	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].Name() < dirs[j].Name()
	})

	cutoff := s.now().Add(-maxAge)

	var (
		deleted int
		errs    []error
	)
	for _, entry := range dirs {
		remaining := len(dirs) - deleted

		tooMany := maxSessions > 0 && remaining > maxSessions
		tooOld := false
		if maxAge > 0 {
			info, err := entry.Info()
			tooOld = err == nil && info.ModTime().Before(cutoff)
		}
		if !tooMany && !tooOld {
			continue
		}

		dir := filepath.Join(s.cfg.SessionsDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}
		deleted++

		s.log.DebugS(ctx, "Pruned session dir", "dir", dir,
			"too_old", tooOld, "too_many", tooMany)
	}

	return deleted, errors.Join(errs...)
}
