package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

func TestClean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.syncer.Pull(ctx, Options{})
	util.AssertNoError(t, err)
	util.WriteFile(t, filepath.Join(f.repo, "README.md"), "# dotfiles")
	util.WriteFile(t, filepath.Join(f.repo, model.VCSDir, "config"), "[core]")

	result, err := f.syncer.Clean(ctx, Options{DryRun: true})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(result.Deleted()), 3)
	if _, err := os.Stat(filepath.Join(f.repo, "README.md")); err != nil {
		t.Fatalf("dry run removed an entry: %v", err)
	}

	result, err = f.syncer.Clean(ctx, Options{})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(result.Deleted()), 3)

	entries, err := os.ReadDir(f.repo)
	util.AssertNoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	if len(left) != 2 {
		t.Errorf("repository after clean = %v, want only .git and the manifest", left)
	}
}

func TestClean_Only(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.syncer.Pull(ctx, Options{})
	util.AssertNoError(t, err)

	result, err := f.syncer.Clean(ctx, Options{Only: []string{"nvim"}})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(result.Items), 1)

	if _, err := os.Stat(filepath.Join(f.repo, "nvim")); !os.IsNotExist(err) {
		t.Error("selected item survived clean")
	}
	if _, err := os.Stat(filepath.Join(f.repo, "zshrc")); err != nil {
		t.Errorf("unselected item removed: %v", err)
	}

	// Already gone: nothing to do.
	result, err = f.syncer.Clean(ctx, Options{Only: []string{"nvim"}})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(result.Items), 0)
}

func TestClean_MissingRepository(t *testing.T) {
	f := newFixture(t)
	util.AssertNoError(t, os.RemoveAll(f.repo))

	result, err := f.syncer.Clean(context.Background(), Options{})
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.TotalProcessed(), 0)
}
