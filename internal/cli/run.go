package cli

import (
	"autopilot/internal/app"

	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler",
		Long: `Run the scheduler loop until interrupted. Config and schedule files are
watched and reloaded while running.

With --once, perform a single pass: run every due task and exit when all of
them have finished.`,
		Args: cobra.NoArgs,
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, _ []string) error {
			return m.RunScheduler(cmd.Context(), once)
		}),
	}
	cmd.Flags().BoolVar(&once, "once", false, "run due tasks once and exit")
	return cmd
}
