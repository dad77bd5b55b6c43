package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/manifest"
	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

// Clean removes every top-level repository entry except the VCS directory and
// the manifest file. With Only set, just those items' repository copies are
// removed. Entries are removed one at a time; FailFast stops at the first
// failure.
func (s *Syncer) Clean(ctx context.Context, opts Options) (*Result, error) {
	repo := s.manifest.Repo()
	if repo == "" {
		return nil, manifest.ErrNoRepository
	}

	targets, err := s.cleanTargets(repo, opts.Only)
	if err != nil {
		return nil, err
	}

	result := &Result{Operation: OperationClean, DryRun: opts.DryRun}
	for _, item := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		path := item.RepoPath(repo)
		r := ItemResult{Item: item, Target: path, Action: ActionDeleted}
		if owner, ok := s.liveOwner(path); ok {
			r = r.fail(fmt.Errorf("%w: removing %s would delete the live path of %q", ErrNestedRepository, path, owner))
		} else if opts.DryRun {
			r.Message = "would remove"
		} else if err := s.copier.Prune(path); err != nil {
			r = r.fail(err)
		}

		result.Items = append(result.Items, r)
		if opts.Progress != nil {
			opts.Progress(r)
		}
		if r.Action == ActionFailed {
			logging.Warn("failed to clean entry", logging.Path(path), logging.Err(r.Error))
			if opts.FailFast {
				break
			}
		}
	}

	logging.Info("cleaned repository", logging.Path(repo), logging.Count(len(result.Deleted())), "dry_run", opts.DryRun)
	return result, nil
}

// cleanTargets lists what Clean removes, as items named after repository entries.
func (s *Syncer) cleanTargets(repo string, only []string) ([]model.TrackedItem, error) {
	if len(only) > 0 {
		items, err := s.manifest.Select(only...)
		if err != nil {
			return nil, err
		}
		var present []model.TrackedItem
		for _, item := range items {
			ok, err := exists(item.RepoPath(repo))
			if err != nil {
				return nil, err
			}
			if ok {
				present = append(present, item)
			}
		}
		return present, nil
	}

	entries, err := os.ReadDir(repo)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keep := ""
	if path := s.manifest.Path(); path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			keep = abs
		}
	}

	var targets []model.TrackedItem
	for _, entry := range entries {
		name := entry.Name()
		if name == model.VCSDir || filepath.Join(repo, name) == keep {
			continue
		}
		item, ok := s.manifest.Find(name)
		if !ok {
			item = model.TrackedItem{Name: name}
		}
		targets = append(targets, item)
	}
	return targets, nil
}

// liveOwner returns the tracked item whose live path lies at or below path.
func (s *Syncer) liveOwner(path string) (string, bool) {
	for _, item := range s.manifest.Items {
		if util.Within(path, manifest.Resolve(item).Path) {
			return item.Name, true
		}
	}
	return "", false
}
