package cli

import (
	"fmt"
	"slices"

	"autopilot/internal/app"
	"autopilot/internal/task"

	"github.com/spf13/cobra"
)

func newScheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or edit the schedule map",
		Long: `The schedule map (schedules.json) gives the default recurrence of a task
type. A task's own schedule takes precedence.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List schedule map entries",
			Args:  cobra.NoArgs,
			RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, _ []string) error {
				sm := m.Schedules()
				out := cmd.OutOrStdout()
				for _, cat := range task.Categories {
					types := sm[string(cat)]
					if len(types) == 0 {
						continue
					}
					heading(out, string(cat))
					names := make([]string, 0, len(types))
					for typ := range types {
						names = append(names, typ)
					}
					slices.Sort(names)
					for _, typ := range names {
						fmt.Fprintf(out, "  %-18s %s\n", typ, types[typ])
					}
					fmt.Fprintln(out)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <category> <type> [descriptor]",
			Short: "Set or clear a schedule map entry",
			Long: `Set the default recurrence of a task type. Without a descriptor the
entry is removed and the type falls back to daily.`,
			Args: cobra.RangeArgs(2, 3),
			RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, args []string) error {
				cat, err := task.ParseCategory(args[0])
				if err != nil {
					return err
				}
				desc := ""
				if len(args) == 3 {
					desc = args[2]
				}
				if err := m.SetSchedule(cat, args[1], desc); err != nil {
					return err
				}
				if desc == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared schedule for %s/%s\n", cat, args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s/%s: %s\n", cat, args[1], desc)
				}
				return nil
			}),
		},
	)
	return cmd
}
