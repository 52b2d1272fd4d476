package cli

import (
	"errors"

	"github.com/railcore/railcore/pkgs/app"
	"github.com/spf13/cobra"
)

func NewRootCommand(app *app.CoreApp) *cobra.Command {
	command := &cobra.Command{
		Use:   "railcore",
		Short: "Model-railroad command station core — operator console",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	command.AddCommand(NewCVCommand(app))
	command.AddCommand(NewFnCommand(app))
	command.AddCommand(NewSpeedCommand(app))
	command.AddCommand(NewModeCommand(app))
	command.AddCommand(NewTurnoutCommand(app))
	command.AddCommand(NewMMProgCommand(app))

	return command
}
