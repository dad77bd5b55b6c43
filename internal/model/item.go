// Package model defines the core types shared across dotsync.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// VCSDir is the version-control metadata directory that is never hashed or copied.
const VCSDir = ".git"

// TrackedItem is a named config file or directory kept in sync with the repository.
type TrackedItem struct {
	// Name is the top-level file or folder name inside the repository.
	Name string `yaml:"name" toml:"name"`
	// Path is the live location on this machine (may start with ~).
	Path string `yaml:"path" toml:"path"`
	// Digest is the fingerprint recorded after the last successful sync.
	Digest string `yaml:"hash,omitempty" toml:"hash,omitempty"`
	// Kind is the cached file/directory type recorded alongside Digest.
	Kind Kind `yaml:"conf_type,omitempty" toml:"conf_type,omitempty"`
}

// Validation errors for tracked items.
var (
	ErrEmptyName   = errors.New("item name is empty")
	ErrEmptyPath   = errors.New("item path is empty")
	ErrInvalidName = errors.New("item name is not a valid repository entry")
)

// HasMetadata returns true once the item has been synced at least once.
func (i TrackedItem) HasMetadata() bool {
	return i.Digest != "" && i.Kind.IsKnown()
}

// SetMetadata records the digest and kind together. An empty digest clears both,
// so the pair is always either fully present or fully absent.
func (i *TrackedItem) SetMetadata(digest string, kind Kind) {
	if digest == "" || !kind.IsKnown() {
		i.ClearMetadata()
		return
	}
	i.Digest = digest
	i.Kind = kind
}

// ClearMetadata forgets the cached digest and kind, forcing a resync.
func (i *TrackedItem) ClearMetadata() {
	i.Digest = ""
	i.Kind = KindUnknown
}

// RepoPath returns where the item lives inside the repository rooted at root.
func (i TrackedItem) RepoPath(root string) string {
	return filepath.Join(root, i.Name)
}

// Validate checks that the item can be safely mapped into the repository.
func (i TrackedItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(i.Path) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyPath, i.Name)
	}
	if i.Name == "." || i.Name == ".." || i.Name == VCSDir || strings.ContainsAny(i.Name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, i.Name)
	}
	if !i.Kind.IsValid() {
		return fmt.Errorf("item %q has invalid kind %q", i.Name, string(i.Kind))
	}
	return nil
}

// String returns a compact description used in listings.
func (i TrackedItem) String() string {
	return fmt.Sprintf("{ name: %s, path: %s, kind: %s }", i.Name, i.Path, i.Kind)
}
