// Package manifest reads and writes the list of tracked items and the
// repository root they are mirrored into.
//
// The file is TOML when its name ends in .toml and YAML otherwise:
//
//	dotconfigs_path: ~/dotconfigs
//	configs:
//	  - name: nvim
//	    path: ~/.config/nvim
//	    hash: 5f1d...
//	    conf_type: directory
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

// DefaultFileName is used when no manifest path is configured.
const DefaultFileName = "dotsync.yaml"

// Errors returned by manifest operations.
var (
	ErrNotFound      = errors.New("manifest not found")
	ErrDuplicateName = errors.New("duplicate item name")
	ErrItemNotFound  = errors.New("item not found")
	ErrNoRepository  = errors.New("dotconfigs_path is not set")
)

// Format is the on-disk encoding of a manifest.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Manifest is the tracked-item list plus the repository root.
type Manifest struct {
	// RepoPath is the repository root ("dotconfigs" directory), possibly ~-prefixed.
	RepoPath string `yaml:"dotconfigs_path" toml:"dotconfigs_path"`
	// Items are the tracked configs in file order.
	Items []model.TrackedItem `yaml:"configs" toml:"configs"`

	path string
}

// New returns an empty manifest that will be saved to path.
func New(path, repoPath string) *Manifest {
	return &Manifest{RepoPath: repoPath, Items: []model.TrackedItem{}, path: path}
}

// Template returns an example manifest for `dotsync new`.
func Template() *Manifest {
	return &Manifest{
		RepoPath: "~/dotconfigs",
		Items: []model.TrackedItem{
			{Name: "nvim", Path: "~/.config/nvim"},
			{Name: "zshrc", Path: "~/.zshrc"},
		},
	}
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	m, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %q: %w", path, err)
	}
	return m, nil
}

// Read parses the manifest at path without validating it, so Fixup can repair
// files that Load rejects.
func Read(path string) (*Manifest, error) {
	// #nosec G304 - path is the user's manifest
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %q: %w", path, err)
	}

	m := &Manifest{path: path}
	if err := m.decode(data, FormatFor(path)); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %q: %w", path, err)
	}
	if m.Items == nil {
		m.Items = []model.TrackedItem{}
	}
	return m, nil
}

// Path returns the file the manifest was loaded from or will be saved to.
func (m *Manifest) Path() string {
	return m.path
}

// Repo returns the repository root as an absolute path for this machine.
func (m *Manifest) Repo() string {
	return util.NormalizePath(m.RepoPath)
}

// Save writes the manifest back to Path().
func (m *Manifest) Save() error {
	return m.SaveTo(m.path)
}

// SaveTo writes the manifest to path atomically and makes path the new Path().
func (m *Manifest) SaveTo(path string) error {
	if path == "" {
		return errors.New("manifest path is empty")
	}
	data, err := m.Encode(FormatFor(path))
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".dotsync-manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // G302 - manifest is not secret
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace manifest %q: %w", path, err)
	}

	m.path = path
	return nil
}

// Encode renders the manifest in the given format.
func (m *Manifest) Encode(format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func (m *Manifest) decode(data []byte, format Format) error {
	if format == FormatTOML {
		_, err := toml.Decode(string(data), m)
		return err
	}
	return yaml.Unmarshal(data, m)
}

// String renders the manifest as YAML for display.
func (m *Manifest) String() string {
	data, err := m.Encode(FormatYAML)
	if err != nil {
		return fmt.Sprintf("<invalid manifest: %v>", err)
	}
	return string(data)
}

// Validate checks the repository root, every item, and name uniqueness.
func (m *Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.RepoPath) == "" {
		errs = append(errs, ErrNoRepository)
	}

	seen := make(map[string]bool, len(m.Items))
	for _, item := range m.Items {
		if err := item.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[item.Name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateName, item.Name))
		}
		seen[item.Name] = true
	}
	return errors.Join(errs...)
}

// Find returns the item with the given name.
func (m *Manifest) Find(name string) (model.TrackedItem, bool) {
	if i := m.index(name); i >= 0 {
		return m.Items[i], true
	}
	return model.TrackedItem{}, false
}

// Names returns every item name in file order.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Items))
	for i, item := range m.Items {
		names[i] = item.Name
	}
	return names
}

// Select returns the named items in file order. No names selects everything.
func (m *Manifest) Select(names ...string) ([]model.TrackedItem, error) {
	if len(names) == 0 {
		return slices.Clone(m.Items), nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		if m.index(n) < 0 {
			return nil, fmt.Errorf("%w: %q", ErrItemNotFound, n)
		}
		want[n] = true
	}

	var items []model.TrackedItem
	for _, item := range m.Items {
		if want[item.Name] {
			items = append(items, item)
		}
	}
	return items, nil
}

// Add tracks a new item. The path is normalized and stored ~-relative when it
// lives under the home directory.
func (m *Manifest) Add(name, path string) (model.TrackedItem, error) {
	item := model.TrackedItem{
		Name: strings.TrimSpace(name),
		Path: util.ContractPath(util.NormalizePath(path)),
	}
	if err := item.Validate(); err != nil {
		return model.TrackedItem{}, err
	}
	if m.index(item.Name) >= 0 {
		return model.TrackedItem{}, fmt.Errorf("%w: %q", ErrDuplicateName, item.Name)
	}
	m.Items = append(m.Items, item)
	return item, nil
}

// Remove stops tracking the named item. The repository copy is left alone.
func (m *Manifest) Remove(name string) error {
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	m.Items = slices.Delete(m.Items, i, i+1)
	return nil
}

// Update stores fresh metadata for the item with the same name.
func (m *Manifest) Update(item model.TrackedItem) error {
	i := m.index(item.Name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrItemNotFound, item.Name)
	}
	m.Items[i].SetMetadata(item.Digest, item.Kind)
	return nil
}

// ClearMetadata forgets every cached digest and kind and returns how many
// items had metadata.
func (m *Manifest) ClearMetadata() int {
	cleared := 0
	for i := range m.Items {
		if m.Items[i].Digest != "" || m.Items[i].Kind != model.KindUnknown {
			cleared++
		}
		m.Items[i].ClearMetadata()
	}
	return cleared
}

// Fixup rewrites paths for this machine (~ expansion, foreign /home/<user>
// prefixes) and stores them ~-relative, drops later duplicates of a name, and
// clears metadata on items whose path changed. It returns the number of items
// changed or removed.
func (m *Manifest) Fixup() int {
	changed := 0
	if fixed := util.ContractPath(util.NormalizePath(m.RepoPath)); fixed != "" && fixed != m.RepoPath {
		m.RepoPath = fixed
		changed++
	}

	seen := make(map[string]bool, len(m.Items))
	items := m.Items[:0]
	for _, item := range m.Items {
		if seen[item.Name] {
			changed++
			continue
		}
		seen[item.Name] = true

		if fixed := util.ContractPath(util.NormalizePath(item.Path)); fixed != item.Path {
			item.Path = fixed
			item.ClearMetadata()
			changed++
		}
		items = append(items, item)
	}
	m.Items = items
	return changed
}

// Resolve returns a copy of item with its path normalized for this machine.
func Resolve(item model.TrackedItem) model.TrackedItem {
	item.Path = util.NormalizePath(item.Path)
	return item
}

func (m *Manifest) index(name string) int {
	return slices.IndexFunc(m.Items, func(i model.TrackedItem) bool {
		return i.Name == name
	})
}
