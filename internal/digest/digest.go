// Package digest computes reproducible content fingerprints for tracked files
// and directory trees.
//
// Files hash to H(contents). A directory hashes its children (sorted by name)
// and folds the resulting list pairwise, H(left ++ right), pairing an odd last
// hash with itself, until a single hash remains. An empty directory hashes to
// H(""). When name hashing is enabled every child contributes
// H(name ++ child) instead of its bare hash, so renames change the parent.
// The root's own name is never mixed in: a tree hashes the same wherever it lives.
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/klauern/dotsync/internal/ignore"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/model"
)

// Digest is a hex-encoded fingerprint of a file or directory tree.
type Digest string

// Empty is the digest of a path that does not exist.
const Empty Digest = ""

// IsEmpty reports whether d is the missing-path sentinel.
func (d Digest) IsEmpty() bool {
	return d == Empty
}

// Short returns the first 8 characters, for display.
func (d Digest) Short() string {
	if len(d) > 8 {
		return string(d[:8])
	}
	return string(d)
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return string(d)
}

// ErrInvalidKind is returned when the root path is neither a regular file nor a directory.
var ErrInvalidKind = errors.New("not a regular file or directory")

// Error wraps a filesystem failure hit while hashing.
type Error struct {
	// Path is the file or directory that could not be read.
	Path string
	// Err is the underlying error.
	Err error
}

// Error returns a formatted message naming the path.
func (e *Error) Error() string {
	return fmt.Sprintf("failed to digest %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Options configures an Engine. The settings apply to every call made on the engine.
type Options struct {
	// Algorithm selects the hash primitive. Defaults to SHA256.
	Algorithm Algorithm
	// HashNames mixes each entry's base name into its node hash.
	HashNames bool
	// Ignore excludes paths beyond the always-skipped .git directories.
	Ignore *ignore.Matcher
	// Logger receives skip diagnostics. Defaults to logging.Default().
	Logger *slog.Logger
}

// DefaultOptions returns SHA-256 hashing with name mixing enabled.
func DefaultOptions() Options {
	return Options{
		Algorithm: SHA256,
		HashNames: true,
	}
}

// Engine computes digests. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	opts Options
	hash hashFunc
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = SHA256
	}
	h, err := opts.Algorithm.newFunc()
	if err != nil {
		return nil, err
	}
	return &Engine{opts: opts, hash: h}, nil
}

// Options returns the settings the engine was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// Node is one entry of a hashed tree.
type Node struct {
	// Path is relative to the hashed root, slash-separated; "." for the root.
	Path string
	// Kind is the entry type.
	Kind model.Kind
	// Digest is the node's contents hash (before name mixing).
	Digest Digest
	// Children holds directory entries in hashing order.
	Children []*Node

	sum []byte
}

// Walk calls fn for n and every descendant in hashing order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Digest returns the fingerprint of path, or Empty if path does not exist.
func (e *Engine) Digest(path string) (Digest, error) {
	d, _, err := e.Inspect(path)
	return d, err
}

// Inspect returns the digest and kind of path in a single traversal.
// A missing path yields Empty and KindUnknown without error.
func (e *Engine) Inspect(path string) (Digest, model.Kind, error) {
	n, err := e.Tree(path)
	if err != nil || n == nil {
		return Empty, model.KindUnknown, err
	}
	return n.Digest, n.Kind, nil
}

// Tree hashes path and returns the full node tree. It returns nil, nil when
// path does not exist. A symlinked root is followed.
func (e *Engine) Tree(path string) (*Node, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	kind, ok := model.KindOf(info)
	if !ok {
		return nil, &Error{Path: path, Err: ErrInvalidKind}
	}
	return e.node(path, ".", kind)
}

// NeedsUpdate reports whether item's live path has drifted from its cached metadata.
// It is true when nothing is cached, when the kind changed, or when the digest differs.
// item.Path must already be normalized; item is not modified.
func (e *Engine) NeedsUpdate(item model.TrackedItem) (bool, error) {
	if !item.HasMetadata() {
		return true, nil
	}
	d, kind, err := e.Inspect(item.Path)
	if err != nil {
		return false, err
	}
	if kind != item.Kind {
		return true, nil
	}
	return d != Digest(item.Digest), nil
}

func (e *Engine) node(abs, rel string, kind model.Kind) (*Node, error) {
	n := &Node{Path: rel, Kind: kind}

	var err error
	switch kind {
	case model.KindFile:
		n.sum, err = e.hashFile(abs)
	case model.KindDirectory:
		err = e.hashDir(abs, n)
	default:
		err = &Error{Path: abs, Err: ErrInvalidKind}
	}
	if err != nil {
		return nil, err
	}

	n.Digest = Digest(hex.EncodeToString(n.sum))
	return n, nil
}

func (e *Engine) hashFile(abs string) ([]byte, error) {
	// #nosec G304 - hashing user-configured paths is the point
	f, err := os.Open(abs)
	if err != nil {
		return nil, &Error{Path: abs, Err: err}
	}
	defer func() { _ = f.Close() }()

	h := e.hash()
	if _, err := io.Copy(h, f); err != nil {
		return nil, &Error{Path: abs, Err: err}
	}
	return h.Sum(nil), nil
}

func (e *Engine) hashDir(abs string, n *Node) error {
	// ReadDir returns entries sorted by name, which fixes the fold order.
	entries, err := os.ReadDir(abs)
	if err != nil {
		return &Error{Path: abs, Err: err}
	}

	sums := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		childRel := path.Join(n.Path, entry.Name())
		childAbs := filepath.Join(abs, entry.Name())

		if e.opts.Ignore.Match(childRel) {
			continue
		}

		kind, skip := e.classify(childAbs, entry)
		if skip {
			continue
		}

		child, err := e.node(childAbs, childRel, kind)
		if err != nil {
			return err
		}
		n.Children = append(n.Children, child)

		if e.opts.HashNames {
			sums = append(sums, e.sum([]byte(entry.Name()), child.sum))
		} else {
			sums = append(sums, child.sum)
		}
	}

	n.sum = e.fold(sums)
	return nil
}

// classify returns the kind of a nested entry, or skip=true for symlinks and
// special files. Nested symlinks are never followed.
func (e *Engine) classify(abs string, entry fs.DirEntry) (model.Kind, bool) {
	mode := entry.Type()
	switch {
	case mode&fs.ModeSymlink != 0:
		e.logger().Debug("skipping symlink", logging.Path(abs))
		return model.KindUnknown, true
	case mode.IsDir():
		return model.KindDirectory, false
	case mode.IsRegular():
		return model.KindFile, false
	default:
		e.logger().Warn("skipping special file", logging.Path(abs), slog.String("mode", mode.String()))
		return model.KindUnknown, true
	}
}

// fold reduces sums pairwise until one remains. An empty list hashes to H("").
func (e *Engine) fold(sums [][]byte) []byte {
	if len(sums) == 0 {
		return e.sum()
	}
	for len(sums) > 1 {
		next := make([][]byte, 0, (len(sums)+1)/2)
		for i := 0; i < len(sums); i += 2 {
			right := sums[i]
			if i+1 < len(sums) {
				right = sums[i+1]
			}
			next = append(next, e.sum(sums[i], right))
		}
		sums = next
	}
	return sums[0]
}

func (e *Engine) sum(parts ...[]byte) []byte {
	h := e.hash()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum(nil)
}

func (e *Engine) logger() *slog.Logger {
	if e.opts.Logger != nil {
		return e.opts.Logger
	}
	return logging.Default()
}
