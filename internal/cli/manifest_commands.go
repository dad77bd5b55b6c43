package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dotsync/internal/manifest"
	"github.com/klauern/dotsync/internal/ui"
)

// defaultEditor is used when neither VISUAL nor EDITOR is set.
const defaultEditor = "vi"

// loadManifest loads the configured manifest.
func (a *app) loadManifest() (*manifest.Manifest, error) {
	return manifest.Load(a.cfg.ManifestPath())
}

func addCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Start tracking a config file or directory",
		UsageText: "dotsync add --name <name> --path <path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "name",
				Aliases:  []string{"N"},
				Usage:    "Entry name inside the repository",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "path",
				Aliases:  []string{"p"},
				Usage:    "Live location on this system",
				Required: true,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			item, err := m.Add(cmd.String("name"), cmd.String("path"))
			if err != nil {
				return err
			}
			if err := m.Save(); err != nil {
				return err
			}
			a.println(ui.StatusSuccess(fmt.Sprintf("tracking %s at %s", ui.Bold(item.Name), item.Path)))
			return nil
		},
	}
}

func removeCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Stop tracking items (repository copies are kept)",
		ArgsUsage: "<name>...",
		Action: func(_ context.Context, cmd *cli.Command) error {
			names := cmd.Args().Slice()
			if len(names) == 0 {
				return errors.New("remove requires at least one item name")
			}
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			for _, name := range names {
				if err := m.Remove(name); err != nil {
					return err
				}
			}
			if err := m.Save(); err != nil {
				return err
			}
			for _, name := range names {
				a.println(ui.StatusSuccess("stopped tracking " + ui.Bold(name)))
			}
			return nil
		},
	}
}

func clearMetadataCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "clear-metadata",
		Aliases: []string{"x"},
		Usage:   "Forget cached digests so the next pull copies everything",
		Action: func(_ context.Context, _ *cli.Command) error {
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			n := m.ClearMetadata()
			if err := m.Save(); err != nil {
				return err
			}
			a.println(ui.StatusSuccess(fmt.Sprintf("cleared metadata for %d item(s)", n)))
			return nil
		},
	}
}

func fixCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "fix",
		Aliases: []string{"z"},
		Usage:   "Rewrite paths for this machine and drop duplicate names",
		Action: func(_ context.Context, _ *cli.Command) error {
			m, err := manifest.Read(a.cfg.ManifestPath())
			if err != nil {
				return err
			}
			n := m.Fixup()
			if err := m.Validate(); err != nil {
				return fmt.Errorf("manifest still invalid after fixing: %w", err)
			}
			if n == 0 {
				a.println(ui.StatusSkipped("manifest already up to date"))
				return nil
			}
			if err := m.Save(); err != nil {
				return err
			}
			a.println(ui.StatusSuccess(fmt.Sprintf("fixed %d manifest entries", n)))
			return nil
		},
	}
}

func printCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "print",
		Aliases: []string{"P"},
		Usage:   "Print the manifest",
		Action: func(_ context.Context, _ *cli.Command) error {
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			a.printf("# %s\n%s", m.Path(), m.String())
			return nil
		},
	}
}

func newCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "new",
		Aliases:   []string{"n"},
		Usage:     "Write an example manifest",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing manifest",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := a.cfg.ManifestPath()
			if cmd.Args().Present() {
				path = cmd.Args().First()
			}

			if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			if err := manifest.Template().SaveTo(path); err != nil {
				return err
			}
			a.println(ui.StatusSuccess("wrote " + path))
			return nil
		},
	}
}

func editCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "edit",
		Aliases: []string{"e"},
		Usage:   "Open the manifest in $VISUAL or $EDITOR",
		Action: func(ctx context.Context, _ *cli.Command) error {
			path := a.cfg.ManifestPath()
			argv := append(strings.Fields(editor()), path)

			// #nosec G204 - the editor comes from the user's environment
			c := exec.CommandContext(ctx, argv[0], argv[1:]...)
			c.Stdin = a.in
			c.Stdout = a.out
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				return fmt.Errorf("failed to run editor %q: %w", argv[0], err)
			}

			if _, err := manifest.Load(path); err != nil {
				a.println(ui.StatusWarning("manifest has problems after editing"))
				return err
			}
			return nil
		},
	}
}

func editor() string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return defaultEditor
}
