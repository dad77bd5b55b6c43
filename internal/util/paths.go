package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// AppName is used for config and state directory names.
const AppName = "dotsync"

func init() {
	// HOME can change between calls (tests, sudo re-exec), so never cache it.
	homedir.DisableCache = true
}

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := homedir.Dir()
	return home
}

// ConfigDir returns the dotsync configuration directory.
// Honors XDG_CONFIG_HOME, falling back to ~/.config/dotsync.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	return filepath.Join(HomeDir(), ".config", AppName)
}

// StateDir returns the dotsync state directory.
// Honors XDG_STATE_HOME, falling back to ~/.local/state/dotsync.
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	return filepath.Join(HomeDir(), ".local", "state", AppName)
}

// BackupsDir returns the default location for pre-push snapshots.
func BackupsDir() string {
	return filepath.Join(StateDir(), "backups")
}

// ExpandPath expands a leading ~ to the current home directory.
// Paths that do not start with ~ are returned unchanged.
func ExpandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		// ~user forms are not supported by go-homedir; leave them alone.
		return path
	}
	return expanded
}

// RewriteForeignHome maps /home/<someone>/rest onto home/rest.
// Manifests written on another machine or by another user keep working this way.
func RewriteForeignHome(path, home string) string {
	const prefix = "/home/"
	if home == "" || !strings.HasPrefix(path, prefix) {
		return path
	}

	rest := strings.TrimPrefix(path, prefix)
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		// "/home/<user>" itself
		return home
	}
	return filepath.Join(home, rest[idx+1:])
}

// NormalizePath turns a manifest path into an absolute, cleaned path for this machine.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	home := HomeDir()
	path = ExpandPath(path)
	path = RewriteForeignHome(path, home)

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return filepath.Clean(path)
}

// ContractPath replaces the home directory prefix with ~ so manifests stay portable.
func ContractPath(path string) string {
	home := HomeDir()
	if home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return filepath.Join("~", rel)
	}
	return path
}

// Within reports whether path is parent or lies below it. Both paths are made
// absolute and cleaned, and symlinks are resolved where the path exists.
func Within(parent, path string) bool {
	rel, err := filepath.Rel(canonical(parent), canonical(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Overlaps reports whether a and b are the same path or one contains the other.
func Overlaps(a, b string) bool {
	return Within(a, b) || Within(b, a)
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}
