package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	stdsync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/dotsync/internal/backup"
	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/manifest"
	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

// ErrNestedRepository means an item's live path contains the repository or
// lies inside it, so mirroring it would copy or delete the repository itself.
var ErrNestedRepository = errors.New("live path overlaps the repository")

// Hasher fingerprints live and repository paths.
type Hasher interface {
	Inspect(path string) (digest.Digest, model.Kind, error)
	NeedsUpdate(item model.TrackedItem) (bool, error)
}

// Copier replaces destinations with copies of their sources.
type Copier interface {
	Mirror(src, dst string, kind model.Kind) error
	Prune(dst string) error
}

// Snapshotter saves a live path before it is overwritten.
type Snapshotter interface {
	Create(item, livePath string) (*backup.Snapshot, error)
}

// Options controls a single batch run.
type Options struct {
	// Workers caps concurrent items. Zero means runtime.NumCPU().
	Workers int

	// FailFast cancels remaining items after the first failure.
	FailFast bool

	// DryRun reports what would change without touching the filesystem or manifest.
	DryRun bool

	// SkipBackup disables pre-push snapshots for this run.
	SkipBackup bool

	// Only restricts the run to the named items. Empty means every item.
	Only []string

	// Progress, if set, is called once for every finished item.
	Progress func(ItemResult)
}

// Syncer runs batch operations over a manifest.
type Syncer struct {
	manifest *manifest.Manifest
	hasher   Hasher
	copier   Copier
	backups  Snapshotter
}

// New creates a Syncer. backups may be nil to disable snapshots.
func New(m *manifest.Manifest, hasher Hasher, copier Copier, backups Snapshotter) *Syncer {
	return &Syncer{
		manifest: m,
		hasher:   hasher,
		copier:   copier,
		backups:  backups,
	}
}

// Manifest returns the manifest the syncer operates on.
func (s *Syncer) Manifest() *manifest.Manifest {
	return s.manifest
}

// Pull copies every drifted live item into the repository.
func (s *Syncer) Pull(ctx context.Context, opts Options) (*Result, error) {
	return s.run(ctx, OperationPull, opts, func(item model.TrackedItem, repo string) ItemResult {
		return s.pullItem(item, repo, opts, false)
	})
}

// ForcePull clears the repository and copies every live item into it.
func (s *Syncer) ForcePull(ctx context.Context, opts Options) (*Result, error) {
	if _, err := s.Clean(ctx, opts); err != nil {
		return nil, err
	}
	return s.run(ctx, OperationForcePull, opts, func(item model.TrackedItem, repo string) ItemResult {
		return s.pullItem(item, repo, opts, true)
	})
}

// Push copies every repository item that differs from its live path back onto the system.
func (s *Syncer) Push(ctx context.Context, opts Options) (*Result, error) {
	return s.run(ctx, OperationPush, opts, func(item model.TrackedItem, repo string) ItemResult {
		return s.pushItem(item, repo, opts, false)
	})
}

// ForcePush copies every repository item onto the system.
func (s *Syncer) ForcePush(ctx context.Context, opts Options) (*Result, error) {
	return s.run(ctx, OperationForcePush, opts, func(item model.TrackedItem, repo string) ItemResult {
		return s.pushItem(item, repo, opts, true)
	})
}

func (s *Syncer) pullItem(item model.TrackedItem, repo string, opts Options, force bool) ItemResult {
	target := item.RepoPath(repo)
	r := ItemResult{Item: item, Source: item.Path, Target: target}

	if _, err := os.Stat(item.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.skip("live path does not exist")
		}
		return r.fail(err)
	}

	targetExists, err := exists(target)
	if err != nil {
		return r.fail(err)
	}

	if !force {
		needs, err := s.hasher.NeedsUpdate(item)
		if err != nil {
			return r.fail(err)
		}
		if !needs && targetExists {
			r.Digest = digest.Digest(item.Digest)
			return r.skip("up to date")
		}
	}

	r.Action = ActionCreated
	if targetExists {
		r.Action = ActionUpdated
	}
	if opts.DryRun {
		r.Message = "would copy into repository"
		return r
	}

	if err := s.copier.Mirror(item.Path, target, item.Kind); err != nil {
		return r.fail(err)
	}
	return s.refresh(r, item.Path)
}

func (s *Syncer) pushItem(item model.TrackedItem, repo string, opts Options, force bool) ItemResult {
	source := item.RepoPath(repo)
	r := ItemResult{Item: item, Source: source, Target: item.Path}

	repoDigest, repoKind, err := s.hasher.Inspect(source)
	if err != nil {
		return r.fail(err)
	}
	if repoDigest.IsEmpty() {
		return r.skip("not in repository")
	}

	liveDigest, _, err := s.hasher.Inspect(item.Path)
	if err != nil {
		return r.fail(err)
	}
	if !force && liveDigest == repoDigest {
		r.Digest = liveDigest
		return r.skip("up to date")
	}

	r.Action = ActionCreated
	if !liveDigest.IsEmpty() {
		r.Action = ActionUpdated
	}
	if opts.DryRun {
		r.Message = "would copy onto system"
		return r
	}

	if s.backups != nil && !opts.SkipBackup && !liveDigest.IsEmpty() {
		snap, err := s.backups.Create(item.Name, item.Path)
		if err != nil {
			return r.fail(fmt.Errorf("failed to back up live copy: %w", err))
		}
		r.BackupID = snap.ID
	}

	if err := s.copier.Mirror(source, item.Path, repoKind); err != nil {
		return r.fail(err)
	}
	return s.refresh(r, item.Path)
}

// refresh re-fingerprints the live path so the manifest caches digest and kind together.
func (s *Syncer) refresh(r ItemResult, live string) ItemResult {
	d, kind, err := s.hasher.Inspect(live)
	if err != nil {
		return r.fail(err)
	}
	r.Item.SetMetadata(string(d), kind)
	r.Digest = d
	return r
}

// run resolves the selected items, processes them in the worker pool, and
// commits refreshed metadata to the manifest.
func (s *Syncer) run(ctx context.Context, op Operation, opts Options, fn func(model.TrackedItem, string) ItemResult) (*Result, error) {
	repo := s.manifest.Repo()
	if repo == "" {
		return nil, manifest.ErrNoRepository
	}
	items, err := s.manifest.Select(opts.Only...)
	if err != nil {
		return nil, err
	}

	log := logging.WithContext(ctx).With(logging.Operation(string(op)), logging.Direction(op.Direction()))
	ctx = logging.NewContext(ctx, log)
	log.Debug("starting batch", logging.Count(len(items)))

	result := &Result{
		Operation: op,
		Items:     make([]ItemResult, len(items)),
		DryRun:    opts.DryRun,
	}

	var mu stdsync.Mutex
	report := func(r ItemResult) {
		if opts.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		opts.Progress(r)
	}

	err = forEach(ctx, items, opts.Workers, func(ctx context.Context, i int, item model.TrackedItem) error {
		var r ItemResult
		if ctx.Err() != nil {
			r = ItemResult{Item: item, Action: ActionSkipped, Message: "canceled"}
		} else {
			resolved := manifest.Resolve(item)
			if err := checkLayout(resolved, repo); err != nil {
				r = ItemResult{Item: resolved, Source: resolved.Path}.fail(err)
			} else {
				r = fn(resolved, repo)
			}

			log := logging.WithContext(ctx).With(logging.Item(item.Name))
			if r.Error != nil {
				r.Error = fmt.Errorf("item %q (%s): %w", item.Name, r.Item.Path, r.Error)
				log.Warn("item failed", logging.Err(r.Error))
			} else {
				log.Debug("item done", "action", string(r.Action))
			}
		}
		result.Items[i] = r
		report(r)

		if r.Action == ActionFailed && opts.FailFast {
			return r.Error
		}
		return nil
	})
	if err != nil {
		log.Debug("batch stopped early", logging.Err(err))
	}

	if err := s.commit(result); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	log.Info("batch finished",
		logging.Count(result.TotalChanged()),
		"failed", len(result.Failed()),
		"dry_run", opts.DryRun)
	return result, nil
}

// commit writes refreshed metadata for every item that was copied and re-hashed.
func (s *Syncer) commit(result *Result) error {
	if result.DryRun {
		return nil
	}

	updated := 0
	for _, r := range result.Items {
		if !r.Changed() || r.Error != nil {
			continue
		}
		if err := s.manifest.Update(r.Item); err != nil {
			return err
		}
		updated++
	}
	if updated == 0 {
		return nil
	}
	if err := s.manifest.Save(); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// forEach calls fn for every item on a bounded pool. A non-nil return from
// fn cancels the context passed to the remaining calls.
func forEach(ctx context.Context, items []model.TrackedItem, workers int, fn func(context.Context, int, model.TrackedItem) error) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			return fn(gctx, i, item)
		})
	}
	return g.Wait()
}

// checkLayout rejects items whose live path overlaps the repository root.
func checkLayout(item model.TrackedItem, repo string) error {
	if util.Overlaps(item.Path, repo) {
		return fmt.Errorf("%w %s", ErrNestedRepository, repo)
	}
	return nil
}

func (r ItemResult) skip(msg string) ItemResult {
	r.Action = ActionSkipped
	r.Message = msg
	return r
}

func (r ItemResult) fail(err error) ItemResult {
	r.Action = ActionFailed
	r.Error = err
	return r
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
