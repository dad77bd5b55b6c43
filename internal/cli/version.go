package cli

import (
	"context"
	"runtime"

	"github.com/urfave/cli/v3"
)

func versionCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Display version and build information",
		Action: func(_ context.Context, _ *cli.Command) error {
			a.printf("dotsync version %s\n", Version)
			a.printf("  commit: %s\n", Commit)
			a.printf("  built: %s\n", BuildDate)
			a.printf("  go: %s\n", runtime.Version())
			return nil
		},
	}
}
