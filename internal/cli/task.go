package cli

import (
	"fmt"

	"autopilot/internal/app"
	"autopilot/internal/task"

	"github.com/spf13/cobra"
)

func newTaskCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task list",
		Long: `Add, list, update and remove tasks. Tasks are addressed by category and
index; indices of later tasks shift down after a removal.

Categories: content_creation, publishing, monetization, maintenance.`,
	}
	cmd.AddCommand(newTaskAddCmd(c), newTaskListCmd(c), newTaskUpdateCmd(c), newTaskRemoveCmd(c))
	return cmd
}

func newTaskAddCmd(c *cli) *cobra.Command {
	var (
		params   paramFlags
		schedule string
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "add <category> <type>",
		Short: "Add a task",
		Long: `Add a task to a category. Without --schedule the task follows the
schedule map entry for its category and type, or daily when there is none.

Examples:
  autopilot task add content_creation shorts -p topic="productivity tips"
  autopilot task add publishing social -p platform=twitter --schedule weekly:mon,thu`,
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
			idx, err := m.AddTask(cat, task.Task{Type: args[1], Parameters: p, Schedule: schedule, Enabled: !disabled})
			if err != nil {
				return fmt.Errorf("adding task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s/%s at index %d\n", cat, args[1], idx)
			return nil
		}),
	}
	params.register(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", "", "recurrence: daily, weekly[:days], biweekly, monthly[:day], custom:HH:MM[,..], cron:<expr>")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add the task disabled")
	return cmd
}

func newTaskListCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [category]",
		Short: "List tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, args []string) error {
			cats := task.Categories
			if len(args) == 1 {
				cat, err := task.ParseCategory(args[0])
				if err != nil {
					return err
				}
				cats = []task.Category{cat}
			}
			out := cmd.OutOrStdout()
			byCat := make(map[task.Category][]task.Task, len(cats))
			for _, cat := range cats {
				list, err := m.ListTasks(cat)
				if err != nil {
					return err
				}
				byCat[cat] = list
			}
			if asJSON {
				return writeJSON(out, byCat)
			}
			for _, cat := range cats {
				heading(out, string(cat))
				if len(byCat[cat]) == 0 {
					fmt.Fprintln(out, "  (none)")
				}
				for i, t := range byCat[cat] {
					printTask(out, i, t)
				}
				fmt.Fprintln(out)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newTaskUpdateCmd(c *cli) *cobra.Command {
	var (
		params   paramFlags
		typ      string
		schedule string
		enabled  bool
	)
	cmd := &cobra.Command{
		Use:   "update <category> <index>",
		Short: "Update a task",
		Long: `Update the task at index. Only the given flags change; --params and
--param replace the whole parameter set. The last-run time is kept, so an
edit does not make the task due again.`,
		Args: cobra.ExactArgs(2),
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, args []string) error {
			cat, err := task.ParseCategory(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			t, err := m.GetTask(cat, idx)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("type") {
				t.Type = typ
			}
			if flags.Changed("schedule") {
				t.Schedule = schedule
			}
			if flags.Changed("enabled") {
				t.Enabled = enabled
			}
			if params.changed(cmd) {
				if t.Parameters, err = params.parse(); err != nil {
					return err
				}
			}
			if err := m.UpdateTask(cat, idx, t); err != nil {
				return fmt.Errorf("updating task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s[%d]\n", cat, idx)
			return nil
		}),
	}
	params.register(cmd)
	cmd.Flags().StringVar(&typ, "type", "", "task type")
	cmd.Flags().StringVar(&schedule, "schedule", "", "recurrence descriptor (empty follows the schedule map)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable or disable the task (--enabled=false)")
	return cmd
}

func newTaskRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <category> <index>",
		Aliases: []string{"rm"},
		Short:   "Remove a task",
		Args:    cobra.ExactArgs(2),
		RunE: c.withManager(func(cmd *cobra.Command, m *app.Manager, args []string) error {
			cat, err := task.ParseCategory(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			removed, err := m.RemoveTask(cat, idx)
			if err != nil {
				return fmt.Errorf("removing task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s/%s from index %d\n", cat, removed.Type, idx)
			return nil
		}),
	}
}
