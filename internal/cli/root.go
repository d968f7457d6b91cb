// Package cli is the command-line control surface of the automation manager.
package cli

import (
	"context"
	"fmt"

	"autopilot/internal/app"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit string) {
	appVersion = version
	appCommit = commit
}

// openManager is swapped in tests.
var openManager = func(dir string) (*app.Manager, error) { return app.Open(dir) }

type cli struct {
	dir string
}

// withManager opens the automation directory for the duration of one command.
func (c *cli) withManager(fn func(cmd *cobra.Command, m *app.Manager, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := openManager(c.dir)
		if err != nil {
			return fmt.Errorf("opening %s: %w", c.dir, err)
		}
		defer m.Close()
		return fn(cmd, m, args)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "autopilot",
		Short: "Automation manager for content, publishing and monetization tasks",
		Long: `autopilot keeps a list of recurring tasks, decides on every tick which of
them are due, runs them with bounded concurrency and records every outcome
in a per-day execution history.

All state lives in the automation directory (--dir): config.json,
schedules.json, tasks.json and the history under logs/.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.dir, "dir", app.DefaultDir, "automation directory")

	root.AddCommand(
		newRunCmd(c),
		newTaskCmd(c),
		newExecCmd(c),
		newHistoryCmd(c),
		newStatusCmd(c),
		newScheduleCmd(c),
		newServiceCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "autopilot %s\ncommit: %s\n", appVersion, appCommit)
			},
		},
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
