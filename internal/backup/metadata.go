package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/klauern/dotsync/internal/model"
)

// Snapshot describes one backup of a tracked item's live path.
type Snapshot struct {
	ID         string     `json:"id"`          // Unique backup identifier (timestamp-item-digest)
	Item       string     `json:"item"`        // Tracked item name
	SourcePath string     `json:"source_path"` // Live path that was backed up
	BackupPath string     `json:"backup_path"` // Copy inside the backup store
	Kind       model.Kind `json:"kind"`        // File or directory
	Digest     string     `json:"digest"`      // Content digest at backup time
	CreatedAt  time.Time  `json:"created_at"`  // Backup creation timestamp
}

// Index maintains an index of all snapshots.
type Index struct {
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Backups map[string]Snapshot `json:"backups"` // Key: snapshot ID
}

const (
	// IndexVersion is the current version of the backup index format
	IndexVersion = "1.0"
	// IndexFilename is the name of the index file
	IndexFilename = "index.json"
)

// loadIndex reads root/index.json. A missing index is empty.
func loadIndex(root string) (*Index, error) {
	indexPath := filepath.Join(root, IndexFilename)

	// #nosec G304 - indexPath is inside the backup store
	data, err := os.ReadFile(indexPath)
	if errors.Is(err, fs.ErrNotExist) {
		return &Index{
			Version: IndexVersion,
			Backups: make(map[string]Snapshot),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse index file: %w", err)
	}
	if index.Backups == nil {
		index.Backups = make(map[string]Snapshot)
	}
	return &index, nil
}

// save writes the index to root/index.json.
func (idx *Index) save(root string, now time.Time) error {
	if err := os.MkdirAll(root, BackupDirPerm); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	idx.Updated = now
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	indexPath := filepath.Join(root, IndexFilename)
	// #nosec G306 - index.json is metadata and can be group-readable
	if err := os.WriteFile(indexPath, data, 0o640); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// list returns snapshots for item (all items when empty), newest first.
func (idx *Index) list(item string) []Snapshot {
	snapshots := make([]Snapshot, 0, len(idx.Backups))
	for _, s := range idx.Backups {
		if item == "" || s.Item == item {
			snapshots = append(snapshots, s)
		}
	}
	slices.SortFunc(snapshots, newestFirst)
	return snapshots
}

func newestFirst(a, b Snapshot) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	// Same second: fall back to ID so ordering is stable.
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	default:
		return 0
	}
}
