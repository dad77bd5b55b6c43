// Package backup snapshots a tracked item's live path before a push
// overwrites it, and restores those snapshots on request.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/model"
)

const (
	// BackupDirPerm is the permission for backup directories (rwxr-x---)
	BackupDirPerm = 0o750
)

// Errors returned by Store operations.
var (
	ErrNotFound        = errors.New("backup not found")
	ErrNothingToBackup = errors.New("live path does not exist")
	ErrCorrupted       = errors.New("backup content does not match its recorded digest")
)

// Copier copies a file or tree, replacing the destination.
type Copier interface {
	Mirror(src, dst string, kind model.Kind) error
}

// Hasher fingerprints a path.
type Hasher interface {
	Inspect(path string) (digest.Digest, model.Kind, error)
}

// Store keeps snapshots under a root directory:
//
//	<root>/index.json
//	<root>/<item>/<id>/<item>
//
// Store is safe for concurrent use.
type Store struct {
	root   string
	copier Copier
	hasher Hasher

	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a Store rooted at root.
func NewStore(root string, copier Copier, hasher Hasher) *Store {
	return &Store{
		root:   root,
		copier: copier,
		hasher: hasher,
		now:    time.Now,
	}
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Create snapshots livePath for item.
func (s *Store) Create(item, livePath string) (*Snapshot, error) {
	d, kind, err := s.hasher.Inspect(livePath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %q: %w", livePath, err)
	}
	if d.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", ErrNothingToBackup, livePath)
	}

	created := s.now()
	id := fmt.Sprintf("%s-%s-%s", created.Format("20060102-150405"), item, d.Short())
	backupPath := filepath.Join(s.root, item, id, item)

	if err := s.copier.Mirror(livePath, backupPath, kind); err != nil {
		return nil, fmt.Errorf("failed to copy %q into backup: %w", livePath, err)
	}

	snap := Snapshot{
		ID:         id,
		Item:       item,
		SourcePath: livePath,
		BackupPath: backupPath,
		Kind:       kind,
		Digest:     string(d),
		CreatedAt:  created,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := loadIndex(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	index.Backups[id] = snap
	if err := index.save(s.root, s.now()); err != nil {
		return nil, err
	}

	logging.Debug("created backup", logging.Item(item), logging.Path(backupPath), logging.Digest(string(d)))
	return &snap, nil
}

// List returns snapshots for item (every item when empty), newest first.
func (s *Store) List(item string) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := loadIndex(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	return index.list(item), nil
}

// Get returns the snapshot with the given ID.
func (s *Store) Get(id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := loadIndex(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	snap, ok := index.Backups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return &snap, nil
}

// Verify checks that a snapshot still hashes to its recorded digest.
func (s *Store) Verify(id string) error {
	snap, err := s.Get(id)
	if err != nil {
		return err
	}
	return s.verify(snap)
}

func (s *Store) verify(snap *Snapshot) error {
	d, _, err := s.hasher.Inspect(snap.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to hash backup %q: %w", snap.ID, err)
	}
	if d.IsEmpty() {
		return fmt.Errorf("%w: %s is missing", ErrCorrupted, snap.BackupPath)
	}
	if string(d) != snap.Digest {
		return fmt.Errorf("%w (expected %s, got %s)", ErrCorrupted, digest.Digest(snap.Digest).Short(), d.Short())
	}
	return nil
}

// Restore copies a snapshot back over its original path.
func (s *Store) Restore(id string) (*Snapshot, error) {
	return s.RestoreTo(id, "")
}

// RestoreTo copies a snapshot to target, or to its original path when target is empty.
func (s *Store) RestoreTo(id, target string) (*Snapshot, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.verify(snap); err != nil {
		return nil, err
	}
	if target == "" {
		target = snap.SourcePath
	}
	if err := s.copier.Mirror(snap.BackupPath, target, snap.Kind); err != nil {
		return nil, fmt.Errorf("failed to restore %q to %q: %w", id, target, err)
	}
	logging.Info("restored backup", logging.Item(snap.Item), logging.Path(target))
	return snap, nil
}

// Delete removes a snapshot and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *Store) deleteLocked(id string) error {
	index, err := loadIndex(s.root)
	if err != nil {
		return fmt.Errorf("failed to load backup index: %w", err)
	}
	snap, ok := index.Backups[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	if err := os.RemoveAll(filepath.Dir(snap.BackupPath)); err != nil {
		return fmt.Errorf("failed to delete backup %q: %w", id, err)
	}
	delete(index.Backups, id)
	return index.save(s.root, s.now())
}
