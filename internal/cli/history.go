package cli

import (
	"fmt"

	"autopilot/internal/app"
	"autopilot/internal/storage"
	"autopilot/internal/task"

	"github.com/spf13/cobra"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		days        int
		category    string
		successOnly bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the execution history",
		Long: `Show execution records from today back --days days, newest first.

Examples:
  autopilot history
  autopilot history --days 30 --category monetization --success-only`,
		Args: cobra.NoArgs,
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, _ []string) error {
			var cat task.Category
			if category != "" {
				var err error
				if cat, err = task.ParseCategory(category); err != nil {
					return err
				}
			}
			recs, err := m.TaskHistory(cmd.Context(), days, cat, successOnly)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if recs == nil {
					recs = []task.ExecutionRecord{}
				}
				return writeJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No executions recorded.")
				return nil
			}
			failed := 0
			for _, rec := range recs {
				printRecord(out, rec)
				if !rec.Success {
					failed++
				}
			}
			fmt.Fprintf(out, "\n%d executions, %d failed\n", len(recs), failed)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", storage.DefaultQueryDays, "days back from today")
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().BoolVar(&successOnly, "success-only", false, "only successful executions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
