package sync

import (
	"context"
	"fmt"

	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/manifest"
	"github.com/klauern/dotsync/internal/model"
)

// State summarizes how a live item relates to its repository copy.
type State string

const (
	// StateInSync means the live and repository digests match.
	StateInSync State = "in-sync"
	// StateModified means both exist but differ.
	StateModified State = "modified"
	// StateNotPulled means the item has never been copied into the repository.
	StateNotPulled State = "not-pulled"
	// StateMissing means the live path does not exist.
	StateMissing State = "missing"
	// StateError means hashing failed or the item overlaps the repository.
	StateError State = "error"
)

// ItemStatus describes one item without changing anything.
type ItemStatus struct {
	Item     model.TrackedItem
	RepoPath string

	Live     digest.Digest
	LiveKind model.Kind
	Repo     digest.Digest
	RepoKind model.Kind

	// NeedsPull is true when the live path drifted from the cached metadata.
	NeedsPull bool

	State State
	Error error
}

// Differs reports whether a push would change the live path.
func (st ItemStatus) Differs() bool {
	return st.State == StateModified || (st.State == StateMissing && !st.Repo.IsEmpty())
}

// Status fingerprints every selected item on both sides. Only, Workers, and
// Progress are honored; the other options are ignored.
func (s *Syncer) Status(ctx context.Context, opts Options) ([]ItemStatus, error) {
	repo := s.manifest.Repo()
	if repo == "" {
		return nil, manifest.ErrNoRepository
	}
	items, err := s.manifest.Select(opts.Only...)
	if err != nil {
		return nil, err
	}

	statuses := make([]ItemStatus, len(items))
	err = forEach(ctx, items, opts.Workers, func(ctx context.Context, i int, item model.TrackedItem) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		statuses[i] = s.status(manifest.Resolve(item), repo)
		return nil
	})
	if err != nil {
		return statuses, err
	}
	return statuses, nil
}

func (s *Syncer) status(item model.TrackedItem, repo string) ItemStatus {
	st := ItemStatus{Item: item, RepoPath: item.RepoPath(repo)}

	if err := checkLayout(item, repo); err != nil {
		return st.fail(item, err)
	}

	var err error
	if st.Live, st.LiveKind, err = s.hasher.Inspect(item.Path); err != nil {
		return st.fail(item, err)
	}
	if st.Repo, st.RepoKind, err = s.hasher.Inspect(st.RepoPath); err != nil {
		return st.fail(item, err)
	}

	st.NeedsPull = !st.Live.IsEmpty() &&
		(!item.HasMetadata() || st.LiveKind != item.Kind || string(st.Live) != item.Digest)

	switch {
	case st.Live.IsEmpty():
		st.State = StateMissing
	case st.Repo.IsEmpty():
		st.State = StateNotPulled
	case st.Live == st.Repo:
		st.State = StateInSync
	default:
		st.State = StateModified
	}
	return st
}

func (st ItemStatus) fail(item model.TrackedItem, err error) ItemStatus {
	st.State = StateError
	st.Error = fmt.Errorf("item %q (%s): %w", item.Name, item.Path, err)
	return st
}
