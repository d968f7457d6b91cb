package cli

import (
	"errors"
	"fmt"

	"autopilot/internal/app"
	"autopilot/internal/task"

	"github.com/spf13/cobra"
)

// ErrTaskFailed is returned when a manual execution was recorded as a failure.
var ErrTaskFailed = errors.New("task failed")

func newExecCmd(c *cli) *cobra.Command {
	var (
		params paramFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "exec <category> <type>",
		Short: "Execute a task now",
		Long: `Execute a task immediately, outside its schedule. The run is recorded in
the history and moves the last-run time of every task with the same
category and type. A run of the same task already in progress is waited for.

Examples:
  autopilot exec content_creation shorts -p topic="morning routines"
  autopilot exec maintenance report -p period=monthly`,
		Args: cobra.ExactArgs(2),
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, args []string) error {
			cat, err := task.ParseCategory(args[0])
			if err != nil {
				return err
			}
			p, err := params.parse()
			if err != nil {
				return err
			}
			rec, err := m.ExecuteTaskNow(cmd.Context(), cat, args[1], p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, rec); err != nil {
					return err
				}
			} else {
				printRecord(out, rec)
				if rec.Success && len(rec.Result) > 0 {
					if err := writeJSON(out, rec.Result); err != nil {
						return err
					}
				}
			}
			if !rec.Success {
				return fmt.Errorf("%w: %s/%s: %s", ErrTaskFailed, rec.Category, rec.Type, rec.Error)
			}
			return nil
		}),
	}
	params.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the execution record as JSON")
	return cmd
}
