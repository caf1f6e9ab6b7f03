package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crosspost/internal/config"
)

func newCheckCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and list the configured destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(f.envFiles...); err != nil {
				return err
			}
			cfg, err := config.NewConfigManager(f.configPath).Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			dests := cfg.Destinations()
			if len(dests) == 0 {
				dests = []string{"(none)"}
			}
			fmt.Fprintf(out, "config ok\n")
			fmt.Fprintf(out, "notion: %s\n", yesNo(cfg.Notion.HasCredentials()))
			fmt.Fprintf(out, "destinations: %s\n", strings.Join(dests, ", "))
			fmt.Fprintf(out, "scheduler: %s\n", schedulerLine(cfg.Scheduler))
			fmt.Fprintf(out, "summary: %s\n", yesNo(cfg.Summary.Enabled))
			return nil
		},
	}
}

func yesNo(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func schedulerLine(sc config.SchedulerConfig) string {
	if !sc.Enabled {
		return "disabled"
	}
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		return sc.Schedule + " (" + tz + ")"
	}
	return sc.Schedule
}
