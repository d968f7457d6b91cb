package cli

import (
	"fmt"

	"autopilot/pkg/unitctl"

	"github.com/spf13/cobra"
)

// connectUnits is swapped in tests.
var connectUnits = unitctl.Connect

func newServiceCmd() *cobra.Command {
	var (
		unit string
		user bool
	)
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Control the scheduler's systemd unit",
		Long: `Show or change the state of the systemd unit running "autopilot run".
Storage changes in the config only take effect after a restart.`,
	}
	cmd.PersistentFlags().StringVar(&unit, "unit", unitctl.DefaultUnit, "systemd unit name")
	cmd.PersistentFlags().BoolVar(&user, "user", false, "use the user service manager")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the unit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctl, err := connectUnits(cmd.Context(), user)
			if err != nil {
				return err
			}
			defer ctl.Close()
			st, err := ctl.Status(cmd.Context(), unit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st)
			return nil
		},
	})
	for _, action := range []struct {
		name, short, past string
		run               func(*unitctl.Controller, *cobra.Command) error
	}{
		{"start", "Start the unit", "Started", func(c *unitctl.Controller, cmd *cobra.Command) error { return c.Start(cmd.Context(), unit) }},
		{"stop", "Stop the unit", "Stopped", func(c *unitctl.Controller, cmd *cobra.Command) error { return c.Stop(cmd.Context(), unit) }},
		{"restart", "Restart the unit", "Restarted", func(c *unitctl.Controller, cmd *cobra.Command) error { return c.Restart(cmd.Context(), unit) }},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctl, err := connectUnits(cmd.Context(), user)
				if err != nil {
					return err
				}
				defer ctl.Close()
				if err := action.run(ctl, cmd); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", action.past, unitctl.NormalizeUnit(unit))
				return nil
			},
		})
	}
	return cmd
}
