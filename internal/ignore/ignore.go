// Package ignore decides which entries of a tracked tree are skipped by both
// hashing and mirroring.
package ignore

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/klauern/dotsync/internal/model"
)

// Matcher excludes version-control metadata plus any user supplied glob patterns.
// A nil *Matcher only applies the version-control rule.
type Matcher struct {
	patterns []string
}

// New validates the patterns and returns a matcher.
// Patterns use doublestar syntax; a pattern without a slash matches base names at any depth.
func New(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = strings.TrimSuffix(filepath.ToSlash(p), "/")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Patterns returns the user patterns in use.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Match reports whether rel, a path relative to the tracked root, is excluded.
// Any component equal to the VCS directory name excludes the whole subtree.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == "" {
		return false
	}

	for _, part := range strings.Split(rel, "/") {
		if part == model.VCSDir {
			return true
		}
	}

	if m == nil {
		return false
	}

	base := path.Base(rel)
	for _, p := range m.patterns {
		target := rel
		if !strings.Contains(p, "/") {
			target = base
		}
		// Patterns were validated in New, so Match cannot fail here.
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}
