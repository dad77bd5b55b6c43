package mirror

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/ignore"
	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

func assertTree(t *testing.T, root string, want map[string]string) {
	t.Helper()
	got := util.ReadTree(t, root)
	if len(got) != len(want) {
		t.Fatalf("tree %s = %v, want %v", root, got, want)
	}
	for _, k := range util.SortedKeys(want) {
		if got[k] != want[k] {
			t.Errorf("%s = %q, want %q", k, got[k], want[k])
		}
	}
}

func TestMirror_Directory(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "repo", "nested", "dst")
	files := map[string]string{"a.txt": "hello", "sub/b.txt": "world"}
	util.WriteTree(t, src, files)

	e := New(Options{})
	if err := e.Mirror(src, dst, model.KindUnknown); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	assertTree(t, dst, files)

	d, err := digest.New(digest.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ds, _ := d.Digest(src)
	dd, _ := d.Digest(dst)
	if ds != dd {
		t.Errorf("digest(src)=%s != digest(dst)=%s after mirror", ds.Short(), dd.Short())
	}
}

func TestMirror_ClearThenCopy(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	util.WriteTree(t, src, map[string]string{"a.txt": "new"})
	util.WriteTree(t, dst, map[string]string{"a.txt": "old", "stale.txt": "gone", "old/dir/x": "y"})

	if err := New(Options{}).Mirror(src, dst, model.KindDirectory); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	assertTree(t, dst, map[string]string{"a.txt": "new"})
	if _, err := os.Stat(filepath.Join(dst, "old")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("destination-only directory survived the mirror")
	}
}

func TestMirror_Idempotent(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	files := map[string]string{"a": "1", "b/c": "2", "b/d/e": "3"}
	util.WriteTree(t, src, files)

	e := New(Options{})
	for i := range 2 {
		if err := e.Mirror(src, dst, model.KindUnknown); err != nil {
			t.Fatalf("Mirror() #%d error = %v", i+1, err)
		}
		assertTree(t, dst, files)
	}
}

func TestMirror_File(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, ".vimrc")
	dst := filepath.Join(base, "repo", "vimrc")
	util.WriteFile(t, src, "set nocompatible")
	if err := os.Chmod(src, 0o640); err != nil {
		t.Fatal(err)
	}
	util.WriteFile(t, dst, "an older and much longer body")

	if err := New(Options{}).Mirror(src, dst, model.KindFile); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}

	data, err := os.ReadFile(dst) //nolint:gosec // G304 - test temp path
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "set nocompatible" {
		t.Errorf("dst = %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("dst mode = %v, want 0640", info.Mode().Perm())
	}
}

func TestMirror_DirectoryReplacesFileAndViceVersa(t *testing.T) {
	base := t.TempDir()
	dirSrc := filepath.Join(base, "dir")
	fileSrc := filepath.Join(base, "file")
	dst := filepath.Join(base, "dst")
	util.WriteTree(t, dirSrc, map[string]string{"x": "1"})
	util.WriteFile(t, fileSrc, "2")
	util.WriteFile(t, dst, "was a file")

	e := New(Options{})
	// Cached kind says file, but the source is now a directory.
	if err := e.Mirror(dirSrc, dst, model.KindFile); err != nil {
		t.Fatalf("Mirror(dir over file) error = %v", err)
	}
	assertTree(t, dst, map[string]string{"x": "1"})

	if err := e.Mirror(fileSrc, dst, model.KindUnknown); err != nil {
		t.Fatalf("Mirror(file over dir) error = %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil || !info.Mode().IsRegular() {
		t.Fatalf("dst is not a regular file: %v", err)
	}
}

func TestMirror_SourceMissing(t *testing.T) {
	base := t.TempDir()
	dst := filepath.Join(base, "dst")
	util.WriteFile(t, filepath.Join(dst, "keep"), "x")

	err := New(Options{}).Mirror(filepath.Join(base, "nope"), dst, model.KindUnknown)
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("Mirror() error = %v, want ErrSourceMissing", err)
	}
	// Destination is untouched when the source is missing.
	assertTree(t, dst, map[string]string{"keep": "x"})
}

func TestMirror_SamePath(t *testing.T) {
	dir := t.TempDir()
	util.WriteFile(t, filepath.Join(dir, "a"), "1")

	err := New(Options{}).Mirror(dir, dir+string(filepath.Separator), model.KindDirectory)
	if !errors.Is(err, ErrSamePath) {
		t.Fatalf("Mirror() error = %v, want ErrSamePath", err)
	}
	assertTree(t, dir, map[string]string{"a": "1"})
}

func TestMirror_NestedPaths(t *testing.T) {
	t.Run("source inside destination", func(t *testing.T) {
		live := t.TempDir()
		repo := filepath.Join(live, "dotconfigs")
		util.WriteTree(t, live, map[string]string{"kitty.conf": "font 12"})
		util.WriteTree(t, repo, map[string]string{"cfg/a.txt": "precious"})

		err := New(Options{}).Mirror(repo, live, model.KindUnknown)
		if !errors.Is(err, ErrNestedPath) {
			t.Fatalf("Mirror() error = %v, want ErrNestedPath", err)
		}
		assertTree(t, live, map[string]string{"kitty.conf": "font 12", "dotconfigs/cfg/a.txt": "precious"})
	})

	t.Run("destination inside source", func(t *testing.T) {
		src := t.TempDir()
		dst := filepath.Join(src, "repo", "cfg")
		util.WriteTree(t, src, map[string]string{"a.txt": "1"})

		e := New(Options{})
		if err := e.Mirror(src, dst, model.KindDirectory); !errors.Is(err, ErrNestedPath) {
			t.Fatalf("Mirror() error = %v, want ErrNestedPath", err)
		}
		if err := e.Populate(src, dst, model.KindDirectory); !errors.Is(err, ErrNestedPath) {
			t.Fatalf("Populate() error = %v, want ErrNestedPath", err)
		}
		if _, err := os.Lstat(filepath.Join(src, "repo")); !errors.Is(err, fs.ErrNotExist) {
			t.Error("a rejected mirror still created the destination")
		}
	})

	t.Run("sibling with shared prefix is allowed", func(t *testing.T) {
		base := t.TempDir()
		src := filepath.Join(base, "cfg")
		dst := filepath.Join(base, "cfg-copy")
		util.WriteTree(t, src, map[string]string{"a.txt": "1"})

		if err := New(Options{}).Mirror(src, dst, model.KindUnknown); err != nil {
			t.Fatalf("Mirror() error = %v", err)
		}
		assertTree(t, dst, map[string]string{"a.txt": "1"})
	})
}

func TestMirror_StaleKindWarns(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	util.WriteTree(t, src, map[string]string{"a": "1"})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	dst := filepath.Join(base, "dst")
	if err := New(Options{Logger: logger}).Mirror(src, dst, model.KindFile); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	assertTree(t, dst, map[string]string{"a": "1"})
	if !strings.Contains(buf.String(), "cached kind is stale") {
		t.Errorf("expected a warning about the stale kind, got %q", buf.String())
	}
}

func TestMirror_SkipsVCSAndIgnored(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	util.WriteTree(t, src, map[string]string{
		"init.lua":              "x",
		".git/HEAD":             "ref",
		"pack/foo/.git/config":  "[core]",
		"pack/foo/plugin.vim":   "y",
		"lazy-lock.json":        "{}",
		"undo/.init.lua.un~":    "z",
		"undo/keep.txt":         "k",
		"sub/lazy-lock.json":    "{}",
		"sub/not-ignored.json":  "{}",
		"pack/foo/.gitignore":   "*.log",
		"pack/foo/doc/tags":     "t",
		"pack/foo/.git/objects": "o",
	})
	m, err := ignore.New("lazy-lock.json", "*.un~")
	if err != nil {
		t.Fatal(err)
	}

	if err := New(Options{Ignore: m}).Mirror(src, dst, model.KindDirectory); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	assertTree(t, dst, map[string]string{
		"init.lua":             "x",
		"pack/foo/plugin.vim":  "y",
		"undo/keep.txt":        "k",
		"sub/not-ignored.json": "{}",
		"pack/foo/.gitignore":  "*.log",
		"pack/foo/doc/tags":    "t",
	})
}

func TestMirror_SkipsSymlinks(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	util.WriteTree(t, src, map[string]string{"a.txt": "hello"})
	if err := os.Symlink("/etc/passwd", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(src, filepath.Join(src, "loop")); err != nil {
		t.Fatal(err)
	}

	if err := New(Options{}).Mirror(src, dst, model.KindDirectory); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	for _, name := range []string{"link", "loop"} {
		if _, err := os.Lstat(filepath.Join(dst, name)); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("symlink %s was copied", name)
		}
	}
	assertTree(t, dst, map[string]string{"a.txt": "hello"})
}

func TestMirror_SkipsSpecialFiles(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "s")
	util.WriteTree(t, src, map[string]string{"a": "1"})
	l, err := net.Listen("unix", filepath.Join(src, "sock"))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer func() { _ = l.Close() }()

	dst := filepath.Join(base, "d")
	if err := New(Options{}).Mirror(src, dst, model.KindUnknown); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	assertTree(t, dst, map[string]string{"a": "1"})

	err = New(Options{}).Mirror(filepath.Join(src, "sock"), filepath.Join(base, "x"), model.KindUnknown)
	if !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Mirror(socket) error = %v, want ErrInvalidKind", err)
	}
}

func TestPruneAndPopulatePhases(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	util.WriteTree(t, src, map[string]string{"a": "1"})
	util.WriteTree(t, dst, map[string]string{"stale": "x"})
	e := New(Options{})

	// Populate alone merges.
	if err := e.Populate(src, dst, model.KindUnknown); err != nil {
		t.Fatalf("Populate() error = %v", err)
	}
	assertTree(t, dst, map[string]string{"a": "1", "stale": "x"})

	if err := e.Prune(dst); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if _, err := os.Lstat(dst); !errors.Is(err, fs.ErrNotExist) {
		t.Error("Prune() left the destination behind")
	}
	// Pruning a missing path is fine.
	if err := e.Prune(dst); err != nil {
		t.Errorf("Prune(missing) error = %v", err)
	}
}

func TestTry_Escalation(t *testing.T) {
	permErr := &fs.PathError{Op: "open", Path: "/etc/x", Err: fs.ErrPermission}

	tests := []struct {
		name          string
		escalate      bool
		escalateErr   error
		failures      int
		wantErr       bool
		wantEscalated int
		wantCalls     int
	}{
		{name: "success", escalate: true, failures: 0, wantCalls: 1},
		{name: "retry succeeds", escalate: true, failures: 1, wantEscalated: 1, wantCalls: 2},
		{name: "retry fails", escalate: true, failures: 2, wantErr: true, wantEscalated: 1, wantCalls: 2},
		{name: "escalation refused", escalate: true, escalateErr: errors.New("no sudo"), failures: 1, wantErr: true, wantEscalated: 1, wantCalls: 1},
		{name: "no escalator", escalate: false, failures: 1, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var escalated, calls int
			opts := Options{}
			if tt.escalate {
				opts.Escalate = func(op, path string, cause error) error {
					escalated++
					if op != OpCopy || path != "/etc/x" || !errors.Is(cause, fs.ErrPermission) {
						t.Errorf("Escalate(%q, %q, %v) got unexpected arguments", op, path, cause)
					}
					return tt.escalateErr
				}
			}
			e := New(opts)

			err := e.try(OpCopy, "/etc/x", func() error {
				calls++
				if calls <= tt.failures {
					return permErr
				}
				return nil
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("try() error = %v, wantErr %v", err, tt.wantErr)
			}
			if escalated != tt.wantEscalated {
				t.Errorf("escalated %d times, want %d", escalated, tt.wantEscalated)
			}
			if calls != tt.wantCalls {
				t.Errorf("fn called %d times, want %d", calls, tt.wantCalls)
			}
			if err != nil {
				var merr *Error
				if !errors.As(err, &merr) || merr.Op != OpCopy || merr.Path != "/etc/x" {
					t.Errorf("try() error = %#v, want *Error{copy, /etc/x}", err)
				}
				if !errors.Is(err, fs.ErrPermission) {
					t.Error("permission cause lost in wrapping")
				}
			}
		})
	}
}

func TestTry_OtherErrorsAreNotEscalated(t *testing.T) {
	e := New(Options{Escalate: func(string, string, error) error {
		t.Error("Escalate called for a non-permission error")
		return nil
	}})
	err := e.try(OpRemove, "/x", func() error { return errors.New("disk on fire") })
	if err == nil || err.Error() != `failed to remove "/x": disk on fire` {
		t.Errorf("try() error = %v", err)
	}
}

func TestMirror_PermissionDeniedEscalates(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	base := t.TempDir()
	src := filepath.Join(base, "src")
	locked := filepath.Join(base, "locked")
	util.WriteTree(t, src, map[string]string{"a": "1"})
	if err := os.MkdirAll(locked, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(locked, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o750) })

	var ops []string
	e := New(Options{Escalate: func(op, path string, _ error) error {
		ops = append(ops, op)
		// Simulate gaining rights by unlocking the directory.
		return os.Chmod(locked, 0o750)
	}})

	if err := e.Mirror(src, filepath.Join(locked, "dst"), model.KindUnknown); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	if len(ops) != 1 || ops[0] != OpCreate {
		t.Errorf("escalated ops = %v, want [create]", ops)
	}
	assertTree(t, filepath.Join(locked, "dst"), map[string]string{"a": "1"})
}
