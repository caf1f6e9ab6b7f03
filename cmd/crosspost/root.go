package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "crosspost",
		Short: "Cross-post new Notion articles to Bluesky, Twitter and Telegram",
		Long: `crosspost reads unposted articles from a Notion database, posts each one to
every configured destination and marks it as posted in Notion.

Example usage:
  crosspost serve --config config.yaml   # webhook + scheduler daemon
  crosspost run                          # one run, then exit
  crosspost check                        # validate config and list destinations
  crosspost sign --secret s < body.json  # compute X-Notion-Signature for a body`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to config (json or yaml); empty uses environment only")
	cmd.PersistentFlags().StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config (missing files are ignored)")

	cmd.AddCommand(
		newServeCmd(f),
		newRunCmd(f),
		newCheckCmd(f),
		newSignCmd(f),
	)
	return cmd
}
