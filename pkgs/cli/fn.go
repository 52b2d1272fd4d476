package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/railcore/railcore/pkgs/app"
	"github.com/spf13/cobra"
)

func NewFnCommand(app *app.CoreApp) *cobra.Command {
	type Args struct {
		LocoId uint16
		Off    bool
	}

	cmdArgs := Args{}
	command := &cobra.Command{
		Use:   "fn",
		Short: "Sends a function request to the decoder",
		RunE: func(command *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("need to specify a function number")
			}

			fnNum64, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid function number %q: %w", args[0], err)
			}

			return app.SendFnAction(cmdArgs.LocoId, uint8(fnNum64), !cmdArgs.Off)
		},
	}

	command.Flags().BoolVarP(&app.Debug, "debug", "v", false, "Increase verbosity to the debug level")
	command.Flags().BoolVarP(&cmdArgs.Off, "off", "d", false, "Toggle the function off")
	command.Flags().Uint16VarP(&cmdArgs.LocoId, "loco", "l", 0, "Use locomotive under specific address")

	command.AddCommand(NewFnListCommand(app))

	return command
}

func NewFnListCommand(app *app.CoreApp) *cobra.Command {
	type Args struct {
		LocoId uint16
	}

	cmdArgs := Args{}
	command := &cobra.Command{
		Use:   "list",
		Short: "Lists all active functions on the locomotive",
		RunE: func(command *cobra.Command, args []string) error {
			return app.ListFnAction(cmdArgs.LocoId)
		},
	}

	command.Flags().BoolVarP(&app.Debug, "debug", "v", false, "Increase verbosity to the debug level")
	command.Flags().Uint16VarP(&cmdArgs.LocoId, "loco", "l", 0, "Use locomotive under specific address")

	return command
}
