package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/klauern/dotsync/internal/backup"
	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/mirror"
	"github.com/klauern/dotsync/internal/ui"
	"github.com/klauern/dotsync/internal/util"
)

// backupStore opens the snapshot store without loading the manifest.
func (a *app) backupStore() (*backup.Store, error) {
	dopts, err := a.cfg.DigestOptions()
	if err != nil {
		return nil, err
	}
	d, err := digest.New(dopts)
	if err != nil {
		return nil, err
	}
	return backup.NewStore(a.cfg.BackupDir(), mirror.New(mirror.Options{}), d), nil
}

func backupCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage snapshots taken before push overwrites live files",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List snapshots, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "item",
						Usage: "Only show snapshots of this item",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					store, err := a.backupStore()
					if err != nil {
						return err
					}
					snaps, err := store.List(cmd.String("item"))
					if err != nil {
						return err
					}
					if len(snaps) == 0 {
						a.println("No backups found.")
						return nil
					}

					table := tablewriter.NewWriter(a.out)
					table.SetHeader([]string{"ID", "Item", "Created", "Source"})
					table.SetAutoWrapText(false)
					table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
					table.SetAlignment(tablewriter.ALIGN_LEFT)
					table.SetBorder(false)
					table.SetHeaderLine(false)
					table.SetCenterSeparator("")
					table.SetColumnSeparator("")
					table.SetRowSeparator("")
					table.SetTablePadding("  ")
					table.SetNoWhiteSpace(true)
					for _, s := range snaps {
						table.Append([]string{s.ID, s.Item,
							s.CreatedAt.Local().Format("2006-01-02 15:04:05"), util.ContractPath(s.SourcePath)})
					}
					table.Render()
					return nil
				},
			},
			{
				Name:      "restore",
				Usage:     "Copy a snapshot back over its live path",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Usage: "Restore to this path instead of the original location",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("restore requires a backup ID (see 'dotsync backup list')")
					}
					store, err := a.backupStore()
					if err != nil {
						return err
					}

					var snap *backup.Snapshot
					if to := cmd.String("to"); to != "" {
						snap, err = store.RestoreTo(id, util.NormalizePath(to))
					} else {
						snap, err = store.Restore(id)
					}
					if err != nil {
						return err
					}
					a.println(ui.StatusSuccess(fmt.Sprintf("restored %s from %s", ui.Bold(snap.Item), snap.ID)))
					return nil
				},
			},
			{
				Name:  "cleanup",
				Usage: "Delete old snapshots beyond the retention limit",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "keep",
						Usage: "Snapshots to keep per item (default from settings)",
					},
					&cli.BoolFlag{
						Name:    "dry-run",
						Aliases: []string{"d"},
						Usage:   "List what would be deleted",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					store, err := a.backupStore()
					if err != nil {
						return err
					}
					opts := backup.DefaultCleanupOptions()
					opts.MaxBackups = a.cfg.Backup.MaxBackups
					if cmd.IsSet("keep") {
						opts.MaxBackups = cmd.Int("keep")
					}
					opts.DryRun = cmd.Bool("dry-run")

					deleted, err := store.Cleanup(opts)
					if err != nil {
						return err
					}
					verb := "deleted"
					if opts.DryRun {
						verb = "would delete"
					}
					for _, id := range deleted {
						a.println(ui.StatusDeleted(id))
					}
					a.printf("%s %d backup(s)\n", verb, len(deleted))
					return nil
				},
			},
		},
	}
}
