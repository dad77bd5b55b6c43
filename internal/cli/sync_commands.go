package cli

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dotsync/internal/backup"
	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/manifest"
	"github.com/klauern/dotsync/internal/mirror"
	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/privilege"
	"github.com/klauern/dotsync/internal/progress"
	"github.com/klauern/dotsync/internal/sync"
	"github.com/klauern/dotsync/internal/ui"
	"github.com/klauern/dotsync/internal/ui/tui"
	"github.com/klauern/dotsync/internal/util"
)

// errNotInteractive is returned when --interactive is used without a terminal.
var errNotInteractive = errors.New("--interactive needs a terminal")

// session bundles the engines built for one command.
type session struct {
	manifest *manifest.Manifest
	digest   *digest.Engine
	store    *backup.Store
	syncer   *sync.Syncer
}

func (a *app) newSession(cmd *cli.Command) (*session, error) {
	m, err := manifest.Load(a.cfg.ManifestPath())
	if err != nil {
		return nil, err
	}

	dopts, err := a.cfg.DigestOptions()
	if err != nil {
		return nil, err
	}
	d, err := digest.New(dopts)
	if err != nil {
		return nil, err
	}

	var escalate mirror.EscalateFunc
	if cmd.Bool("escalate") || a.cfg.Sync.Escalate {
		escalate = privilege.New().Escalate
	}
	mr := mirror.New(mirror.Options{Escalate: escalate, Ignore: dopts.Ignore})

	s := &session{manifest: m, digest: d}
	var snapshots sync.Snapshotter
	if a.cfg.Backup.Enabled {
		s.store = backup.NewStore(a.cfg.BackupDir(), mr, d)
		snapshots = s.store
	}
	s.syncer = sync.New(m, d, mr, snapshots)
	return s, nil
}

func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "only",
			Usage: "Only process these items (comma-separated or repeated)",
		},
		&cli.BoolFlag{
			Name:    "interactive",
			Aliases: []string{"i"},
			Usage:   "Choose items in an interactive picker",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of items processed in parallel (default from settings)",
		},
	}
}

func syncFlags(push bool) []cli.Flag {
	flags := append(selectionFlags(),
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"d"},
			Usage:   "Preview changes without modifying files",
		},
		&cli.BoolFlag{
			Name:  "fail-fast",
			Usage: "Stop at the first failed item",
		},
		&cli.BoolFlag{
			Name:  "escalate",
			Usage: "Re-run under sudo when a copy hits a permission error",
		},
	)
	if push {
		flags = append(flags, &cli.BoolFlag{
			Name:  "skip-backup",
			Usage: "Do not snapshot live files before overwriting them",
		})
	}
	return flags
}

type batchFunc func(s *sync.Syncer, ctx context.Context, opts sync.Options) (*sync.Result, error)

func pullCommand(a *app) *cli.Command {
	return batchCommand(a, "pull", "u", "Copy changed live configs into the repository", false, (*sync.Syncer).Pull)
}

func pushCommand(a *app) *cli.Command {
	return batchCommand(a, "push", "U", "Copy changed repository configs onto this system", true, (*sync.Syncer).Push)
}

func forcePullCommand(a *app) *cli.Command {
	return batchCommand(a, "force-pull", "F", "Clear the repository and copy every live config into it", false, (*sync.Syncer).ForcePull)
}

func forcePushCommand(a *app) *cli.Command {
	return batchCommand(a, "force-push", "f", "Copy every repository config onto this system", true, (*sync.Syncer).ForcePush)
}

func batchCommand(a *app, name, alias, usage string, push bool, run batchFunc) *cli.Command {
	return &cli.Command{
		Name:    name,
		Aliases: []string{alias},
		Usage:   usage,
		Flags:   syncFlags(push),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.newSession(cmd)
			if err != nil {
				return err
			}

			opts, ok, err := a.batchOptions(ctx, cmd, s, name)
			if err != nil || !ok {
				return err
			}

			bar := a.progressBar(s, opts, name)
			opts.Progress = func(r sync.ItemResult) {
				bar.Step(r.Item.Name)
			}

			result, err := run(s.syncer, ctx, opts)
			_ = bar.Finish()
			if result == nil {
				return err
			}
			a.printResult(result)

			if push && !opts.DryRun {
				a.pruneBackups(s)
			}
			if err != nil {
				return err
			}
			if !result.Success() {
				return fmt.Errorf("%d item(s) failed", len(result.Failed()))
			}
			return nil
		},
	}
}

// batchOptions builds sync options from flags and settings. ok is false when
// the user canceled the interactive picker.
func (a *app) batchOptions(ctx context.Context, cmd *cli.Command, s *session, title string) (sync.Options, bool, error) {
	opts := sync.Options{
		Workers:    a.cfg.Sync.Workers,
		FailFast:   a.cfg.Sync.FailFast || cmd.Bool("fail-fast"),
		DryRun:     cmd.Bool("dry-run"),
		SkipBackup: cmd.Bool("skip-backup"),
		Only:       cmd.StringSlice("only"),
	}
	if cmd.IsSet("workers") {
		opts.Workers = cmd.Int("workers")
	}

	if cmd.Bool("interactive") {
		names, ok, err := a.pick(ctx, s, title, opts)
		if err != nil || !ok {
			return opts, false, err
		}
		opts.Only = names
	}
	return opts, true, nil
}

func (a *app) pick(ctx context.Context, s *session, title string, opts sync.Options) ([]string, bool, error) {
	if !a.isTTY() {
		return nil, false, errNotInteractive
	}

	statuses, err := s.syncer.Status(ctx, sync.Options{Only: opts.Only, Workers: opts.Workers})
	if err != nil {
		return nil, false, err
	}
	items := make([]tui.PickerItem, len(statuses))
	for i, st := range statuses {
		item := st.Item
		item.Path = util.ContractPath(item.Path)
		items[i] = tui.PickerItem{Item: item, State: string(st.State)}
	}

	res, err := tui.RunItemPicker(strings.ToUpper(title[:1])+title[1:], items)
	if err != nil {
		return nil, false, err
	}
	if !res.Confirmed {
		a.println("Canceled.")
		return nil, false, nil
	}
	return res.Names, true, nil
}

func (a *app) progressBar(s *session, opts sync.Options, title string) *progress.Bar {
	count := 0
	if items, err := s.manifest.Select(opts.Only...); err == nil {
		count = len(items)
	}
	return progress.New(progress.Options{
		Max:         count,
		Description: title,
		Disabled:    !a.cfg.Output.Progress,
	})
}

// pruneBackups applies the retention limit after a push.
func (a *app) pruneBackups(s *session) {
	if s.store == nil || a.cfg.Backup.MaxBackups <= 0 {
		return
	}
	opts := backup.DefaultCleanupOptions()
	opts.MaxBackups = a.cfg.Backup.MaxBackups
	deleted, err := s.store.Cleanup(opts)
	if err != nil {
		logging.Warn("backup cleanup failed", logging.Err(err))
		return
	}
	if len(deleted) > 0 {
		logging.Info("removed old backups", logging.Count(len(deleted)))
	}
}

func (a *app) printResult(result *sync.Result) {
	for _, r := range result.Items {
		a.println(formatItemResult(r))
	}
	if len(result.Items) > 0 {
		a.println()
	}
	a.printf("%s", result.Summary())
}

func formatItemResult(r sync.ItemResult) string {
	name := ui.Bold(r.Item.Name)
	detail := string(r.Action)
	if r.Message != "" {
		detail += ": " + r.Message
	}
	if r.BackupID != "" {
		detail += fmt.Sprintf(" (backup %s)", r.BackupID)
	}

	switch r.Action {
	case sync.ActionCreated, sync.ActionUpdated:
		return ui.StatusSuccess(fmt.Sprintf("%s %s %s", name, ui.Dim(detail), ui.Info(util.ContractPath(r.Target))))
	case sync.ActionDeleted:
		return ui.StatusDeleted(fmt.Sprintf("%s %s", name, ui.Dim(detail)))
	case sync.ActionFailed:
		return ui.StatusError(fmt.Sprintf("%s %v", name, r.Error))
	default:
		return ui.StatusSkipped(fmt.Sprintf("%s %s", name, ui.Dim(detail)))
	}
}

func statusCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "status",
		Aliases: []string{"s"},
		Usage:   "Show which items differ between this system and the repository",
		Flags: append(selectionFlags(), &cli.BoolFlag{
			Name:    "tree",
			Aliases: []string{"t"},
			Usage:   "Show the hashed tree of every item that is not in sync",
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.newSession(cmd)
			if err != nil {
				return err
			}
			opts := sync.Options{Workers: a.cfg.Sync.Workers, Only: cmd.StringSlice("only")}
			if cmd.IsSet("workers") {
				opts.Workers = cmd.Int("workers")
			}

			statuses, err := s.syncer.Status(ctx, opts)
			if err != nil {
				return err
			}

			var errs []error
			for _, st := range statuses {
				a.println(formatStatus(st))
				if st.Error != nil {
					errs = append(errs, st.Error)
					continue
				}
				if cmd.Bool("tree") && st.State != sync.StateInSync && st.State != sync.StateMissing {
					if err := a.printTree(s.digest, st.Item.Path); err != nil {
						errs = append(errs, err)
					}
				}
			}
			return errors.Join(errs...)
		},
	}
}

func formatStatus(st sync.ItemStatus) string {
	name := ui.Bold(st.Item.Name)
	where := ui.Dim(util.ContractPath(st.Item.Path))

	switch st.State {
	case sync.StateInSync:
		return ui.StatusSuccess(fmt.Sprintf("%s %s %s", name, string(st.State), where))
	case sync.StateModified:
		return ui.StatusWarning(fmt.Sprintf("%s %s %s", name, string(st.State), where))
	case sync.StateNotPulled:
		return ui.StatusPending(fmt.Sprintf("%s %s %s", name, string(st.State), where))
	case sync.StateMissing:
		return ui.StatusSkipped(fmt.Sprintf("%s %s %s", name, string(st.State), where))
	default:
		return ui.StatusError(fmt.Sprintf("%s %v", name, st.Error))
	}
}

func (a *app) printTree(d *digest.Engine, root string) error {
	tree, err := d.Tree(root)
	if err != nil || tree == nil {
		return err
	}
	tree.Walk(func(n *digest.Node) {
		depth := 0
		label := "."
		if n.Path != "." {
			depth = strings.Count(n.Path, "/") + 1
			label = path.Base(n.Path)
		}
		if n.Kind == model.KindDirectory {
			label += "/"
		}
		a.printf("    %s%s %s\n", strings.Repeat("  ", depth), label, ui.Dim(n.Digest.Short()))
	})
	return nil
}

func cleanCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "clean",
		Aliases: []string{"C"},
		Usage:   "Remove everything from the repository except .git and the manifest",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "Only remove these items' repository copies",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "List what would be removed",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "Stop at the first entry that cannot be removed",
			},
			&cli.BoolFlag{
				Name:  "escalate",
				Usage: "Re-run under sudo when a removal hits a permission error",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.newSession(cmd)
			if err != nil {
				return err
			}
			result, err := s.syncer.Clean(ctx, sync.Options{
				Only:     cmd.StringSlice("only"),
				DryRun:   cmd.Bool("dry-run"),
				FailFast: cmd.Bool("fail-fast"),
			})
			if result == nil {
				return err
			}
			a.printResult(result)
			if err != nil {
				return err
			}
			return result.Err()
		},
	}
}
