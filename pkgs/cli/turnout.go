package cli

import (
	"fmt"
	"strconv"

	"github.com/railcore/railcore/pkgs/app"
	"github.com/spf13/cobra"
)

func NewTurnoutCommand(app *app.CoreApp) *cobra.Command {
	command := &cobra.Command{
		Use:   "turnout",
		Short: "Switch accessory decoder outputs (turnouts)",
		RunE: func(command *cobra.Command, args []string) error {
			return command.Help()
		},
	}

	command.AddCommand(NewTurnoutSwitchCommand(app))
	command.AddCommand(NewBoosterVoltageCommand(app))

	return command
}

func NewTurnoutSwitchCommand(app *app.CoreApp) *cobra.Command {
	type Args struct {
		Addr   uint16
		Thrown bool
	}

	cmdArgs := Args{}
	command := &cobra.Command{
		Use:   "switch",
		Short: "Set a turnout to thrown or straight",
		Example: `  railcore turnout switch --addr 12 --thrown
  railcore turnout switch --addr 12`,
		Args: cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			return app.SwitchTurnoutAction(cmdArgs.Addr, cmdArgs.Thrown)
		},
	}

	command.Flags().BoolVarP(&app.Debug, "debug", "v", false, "Increase verbosity to the debug level")
	command.Flags().Uint16VarP(&cmdArgs.Addr, "addr", "a", 0, "Accessory address (required)")
	command.Flags().BoolVarP(&cmdArgs.Thrown, "thrown", "t", false, "Set the turnout to the thrown position (default is straight)")

	command.MarkFlagRequired("addr")

	return command
}

func NewBoosterVoltageCommand(app *app.CoreApp) *cobra.Command {
	command := &cobra.Command{
		Use:   "voltage VOLTAGE_0_1V",
		Short: "Set the booster's target track voltage, in tenths of a volt",
		Example: `  railcore turnout voltage 185   # 18.5V`,
		Args: cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			v64, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid voltage %q: %w", args[0], err)
			}
			return app.SetBoosterVoltageAction(uint16(v64))
		},
	}

	command.Flags().BoolVarP(&app.Debug, "debug", "v", false, "Increase verbosity to the debug level")

	return command
}
