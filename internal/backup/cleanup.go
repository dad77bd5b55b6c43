package backup

import (
	"fmt"
	"time"
)

// CleanupOptions configures backup cleanup behavior
type CleanupOptions struct {
	// MaxBackups limits the number of snapshots kept per item (0 = unlimited)
	MaxBackups int

	// MaxAge is the maximum age of snapshots to keep (0 = unlimited)
	MaxAge time.Duration

	// KeepAtLeastOne ensures the newest snapshot of every item survives
	KeepAtLeastOne bool

	// Item filters cleanup to a single item (empty = all items)
	Item string

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxBackups:     10,
		MaxAge:         0,
		KeepAtLeastOne: true,
	}
}

// Cleanup removes old snapshots and returns the IDs removed (or that would be
// removed in dry-run mode).
func (s *Store) Cleanup(opts CleanupOptions) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := loadIndex(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	groups := make(map[string][]Snapshot)
	for _, snap := range index.list(opts.Item) {
		groups[snap.Item] = append(groups[snap.Item], snap)
	}

	var toDelete []string
	now := s.now()
	for _, group := range groups {
		// group is newest first
		var doomed []string
		for i, snap := range group {
			tooOld := opts.MaxAge > 0 && now.Sub(snap.CreatedAt) > opts.MaxAge
			tooMany := opts.MaxBackups > 0 && i >= opts.MaxBackups
			if tooOld || tooMany {
				doomed = append(doomed, snap.ID)
			}
		}
		if opts.KeepAtLeastOne && len(doomed) == len(group) && len(doomed) > 0 {
			doomed = doomed[1:]
		}
		toDelete = append(toDelete, doomed...)
	}

	if opts.DryRun {
		return toDelete, nil
	}

	var deleted []string
	for _, id := range toDelete {
		if err := s.deleteLocked(id); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %q: %w", id, err)
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}
