// Package sync runs pull, push, status, and clean over every tracked item in a
// manifest.
//
// # Directions
//
//   - Pull mirrors each live path into <repo>/<name> when the live content no
//     longer matches the digest cached in the manifest.
//   - Push mirrors <repo>/<name> back over the live path when the two differ,
//     snapshotting the live path first if a backup store is configured.
//   - ForcePull and ForcePush skip change detection. ForcePull also clears
//     the repository before copying.
//
// # Batches
//
// Items are processed concurrently, up to Options.Workers at a time. Each
// worker only touches its own item's paths and writes only its own result
// slot. Cached digests are written back to the manifest after every worker
// has finished, and only for items whose mirror and re-digest both
// succeeded, so a failed batch never leaves the manifest half-updated.
//
// An item whose live path contains the repository, or lies inside it, fails
// with ErrNestedRepository before anything is copied. Clean also refuses to
// remove a repository entry that holds a tracked live path.
//
// A failing item does not stop the batch unless Options.FailFast is set; the
// failure is recorded in the Result instead:
//
//	result, err := syncer.Pull(ctx, sync.Options{Workers: 4})
//	if err != nil {
//	    return err // manifest or setup problem
//	}
//	fmt.Print(result.Summary())
//	return result.Err() // joined per-item failures
//
// # Progress Reporting
//
// Options.Progress is called once per finished item. Calls are serialized,
// so the callback does not need its own locking.
package sync
