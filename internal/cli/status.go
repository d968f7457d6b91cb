package cli

import (
	"fmt"

	"autopilot/internal/app"
	"autopilot/internal/task"

	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and task counts",
		Args:  cobra.NoArgs,
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, _ []string) error {
			st := m.Status()
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}
			cfg := m.Config()
			fmt.Fprintf(out, "Directory:   %s\n", st.Dir)
			fmt.Fprintf(out, "Enabled:     %t\n", cfg.Enabled)
			fmt.Fprintf(out, "Timezone:    %s\n", st.Scheduler.Timezone)
			fmt.Fprintf(out, "Tick:        %s\n", st.Scheduler.Interval)
			fmt.Fprintf(out, "Concurrency: %d\n", st.Scheduler.Queue.Limit)
			fmt.Fprintf(out, "Storage:     %s\n", st.Storage)
			fmt.Fprintf(out, "Alerts:      %t\n", st.Alerts)
			fmt.Fprintln(out, "Tasks:")
			for _, cat := range task.Categories {
				fmt.Fprintf(out, "  %-17s %d\n", cat, st.Tasks[cat])
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
