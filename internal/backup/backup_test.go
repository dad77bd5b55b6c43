package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/mirror"
	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

// newTestStore returns a store whose clock advances one minute per call.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := digest.New(digest.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(filepath.Join(util.CreateTempDir(t), "backups"), mirror.New(mirror.Options{}), d)

	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func TestCreateAndRestore_Directory(t *testing.T) {
	s := newTestStore(t)
	live := filepath.Join(util.CreateTempDir(t), "nvim")
	util.WriteTree(t, live, map[string]string{"init.lua": "v1", "lua/a.lua": "a"})

	snap, err := s.Create("nvim", live)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	util.AssertEqual(t, snap.Item, "nvim")
	util.AssertEqual(t, snap.Kind, model.KindDirectory)
	util.AssertEqual(t, snap.SourcePath, live)
	if filepath.Base(snap.BackupPath) != "nvim" {
		t.Errorf("BackupPath = %q", snap.BackupPath)
	}

	// Push overwrites the live tree.
	util.WriteTree(t, live, map[string]string{"init.lua": "v2", "new.lua": "n"})

	if _, err := s.Restore(snap.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	got := util.ReadTree(t, live)
	if len(got) != 2 || got["init.lua"] != "v1" || got["lua/a.lua"] != "a" {
		t.Errorf("restored tree = %v", got)
	}
}

func TestCreate_File(t *testing.T) {
	s := newTestStore(t)
	live := filepath.Join(util.CreateTempDir(t), ".zshrc")
	util.WriteFile(t, live, "export X=1")

	snap, err := s.Create("zshrc", live)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	util.AssertEqual(t, snap.Kind, model.KindFile)
	util.AssertNoError(t, s.Verify(snap.ID))

	target := filepath.Join(util.CreateTempDir(t), "restored")
	if _, err := s.RestoreTo(snap.ID, target); err != nil {
		t.Fatalf("RestoreTo() error = %v", err)
	}
	data, err := os.ReadFile(target) //nolint:gosec // G304 - test temp path
	util.AssertNoError(t, err)
	util.AssertEqual(t, string(data), "export X=1")
}

func TestCreate_MissingLivePath(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("ghost", filepath.Join(util.CreateTempDir(t), "nope"))
	if !errors.Is(err, ErrNothingToBackup) {
		t.Errorf("Create() error = %v, want ErrNothingToBackup", err)
	}
}

func TestVerify_Corrupted(t *testing.T) {
	s := newTestStore(t)
	live := filepath.Join(util.CreateTempDir(t), "gitconfig")
	util.WriteFile(t, live, "[user]")

	snap, err := s.Create("gitconfig", live)
	util.AssertNoError(t, err)

	util.WriteFile(t, snap.BackupPath, "tampered")
	if err := s.Verify(snap.ID); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Verify() error = %v, want ErrCorrupted", err)
	}
	if _, err := s.Restore(snap.ID); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Restore() error = %v, want ErrCorrupted", err)
	}
	if err := s.Verify("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Verify(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := newTestStore(t)
	dir := util.CreateTempDir(t)
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	util.WriteFile(t, a, "1")
	util.WriteFile(t, b, "2")

	first, err := s.Create("a", a)
	util.AssertNoError(t, err)
	util.WriteFile(t, a, "1b")
	second, err := s.Create("a", a)
	util.AssertNoError(t, err)
	_, err = s.Create("b", b)
	util.AssertNoError(t, err)

	all, err := s.List("")
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(all), 3)

	onlyA, err := s.List("a")
	util.AssertNoError(t, err)
	if len(onlyA) != 2 || onlyA[0].ID != second.ID || onlyA[1].ID != first.ID {
		t.Errorf("List(a) = %v, want newest first", onlyA)
	}

	util.AssertNoError(t, s.Delete(first.ID))
	if _, err := os.Stat(first.BackupPath); !os.IsNotExist(err) {
		t.Error("Delete() left the snapshot on disk")
	}
	if err := s.Delete(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(twice) error = %v", err)
	}
}

func TestConcurrentCreate(t *testing.T) {
	s := newTestStore(t)
	dir := util.CreateTempDir(t)

	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range names {
		util.WriteFile(t, filepath.Join(dir, n), n)
	}

	// now() is not goroutine safe in the test store; use a fixed clock.
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	errs := make(chan error, len(names))
	for _, n := range names {
		go func() {
			_, err := s.Create(n, filepath.Join(dir, n))
			errs <- err
		}()
	}
	for range names {
		util.AssertNoError(t, <-errs)
	}

	all, err := s.List("")
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(all), len(names))
}
