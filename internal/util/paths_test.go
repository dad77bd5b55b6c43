package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := HomeDir(); got != home {
		t.Errorf("HomeDir() = %q, want %q", got, home)
	}
}

func TestConfigAndStateDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")

	if got, want := ConfigDir(), filepath.Join(home, ".config", "dotsync"); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
	if got, want := StateDir(), filepath.Join(home, ".local", "state", "dotsync"); got != want {
		t.Errorf("StateDir() = %q, want %q", got, want)
	}
	if got, want := BackupsDir(), filepath.Join(home, ".local", "state", "dotsync", "backups"); got != want {
		t.Errorf("BackupsDir() = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	if got := ConfigDir(); got != "/xdg/config/dotsync" {
		t.Errorf("ConfigDir() with XDG = %q", got)
	}
	if got := StateDir(); got != "/xdg/state/dotsync" {
		t.Errorf("StateDir() with XDG = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := map[string]string{
		"~":              home,
		"~/.vimrc":       filepath.Join(home, ".vimrc"),
		"/etc/hosts":     "/etc/hosts",
		"relative/path":  "relative/path",
		"~other/.bashrc": "~other/.bashrc",
	}

	for input, want := range tests {
		if got := ExpandPath(input); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRewriteForeignHome(t *testing.T) {
	tests := []struct {
		path string
		home string
		want string
	}{
		{path: "/home/alice/.config/nvim", home: "/home/bob", want: "/home/bob/.config/nvim"},
		{path: "/home/bob/.zshrc", home: "/home/bob", want: "/home/bob/.zshrc"},
		{path: "/home/alice", home: "/Users/bob", want: "/Users/bob"},
		{path: "/etc/fstab", home: "/home/bob", want: "/etc/fstab"},
		{path: "/home/alice/.x", home: "", want: "/home/alice/.x"},
	}

	for _, tt := range tests {
		if got := RewriteForeignHome(tt.path, tt.home); got != tt.want {
			t.Errorf("RewriteForeignHome(%q, %q) = %q, want %q", tt.path, tt.home, got, tt.want)
		}
	}
}

func TestNormalizeAndContractPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := NormalizePath(""); got != "" {
		t.Errorf("NormalizePath(\"\") = %q", got)
	}

	got := NormalizePath("~/.config/../.vimrc")
	want := filepath.Join(home, ".vimrc")
	if got != want {
		t.Errorf("NormalizePath() = %q, want %q", got, want)
	}

	if !filepath.IsAbs(NormalizePath("relative")) {
		t.Error("expected relative paths to become absolute")
	}

	if got := ContractPath(filepath.Join(home, ".config", "nvim")); got != filepath.Join("~", ".config", "nvim") {
		t.Errorf("ContractPath() = %q", got)
	}
	if got := ContractPath(home); got != "~" {
		t.Errorf("ContractPath(home) = %q", got)
	}
	if got := ContractPath("/etc/hosts"); got != "/etc/hosts" {
		t.Errorf("ContractPath(outside home) = %q", got)
	}
}

func TestWithinAndOverlaps(t *testing.T) {
	base := t.TempDir()
	repo := filepath.Join(base, ".config", "dotconfigs")

	tests := map[string]struct {
		parent, path string
		within       bool
		overlaps     bool
	}{
		"same path":          {parent: repo, path: repo + "/", within: true, overlaps: true},
		"child":              {parent: filepath.Join(base, ".config"), path: repo, within: true, overlaps: true},
		"parent":             {parent: repo, path: filepath.Join(base, ".config"), within: false, overlaps: true},
		"sibling":            {parent: repo, path: filepath.Join(base, ".config", "nvim"), overlaps: false},
		"shared name prefix": {parent: repo, path: repo + "-old", overlaps: false},
		"dot dot prefix":     {parent: base, path: filepath.Join(base, "..foo"), within: true, overlaps: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Within(tt.parent, tt.path); got != tt.within {
				t.Errorf("Within(%q, %q) = %v, want %v", tt.parent, tt.path, got, tt.within)
			}
			if got := Overlaps(tt.parent, tt.path); got != tt.overlaps {
				t.Errorf("Overlaps(%q, %q) = %v, want %v", tt.parent, tt.path, got, tt.overlaps)
			}
		})
	}
}

func TestWithin_FollowsSymlinks(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "real")
	if err := os.MkdirAll(filepath.Join(target, "repo"), 0o750); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if !Within(link, filepath.Join(target, "repo")) {
		t.Error("expected a symlinked parent to contain its target's children")
	}
}
