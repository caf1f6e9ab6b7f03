package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crosspost/internal/app"
	"crosspost/internal/runner"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Perform one run and exit",
		Long: `run reads unposted articles, posts them to every configured destination and
prints the run summary. It exits non-zero only when the run could not happen
at all (no destination, Notion unreachable); per-destination failures are
reported in the summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: f.configPath, EnvFiles: f.envFiles})
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background(), app.StopOneShot) }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rep, err := a.Runner().Run(ctx, runner.TriggerCLI)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.Summary())
			return nil
		},
	}
}
