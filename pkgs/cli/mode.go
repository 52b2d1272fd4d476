package cli

import (
	"github.com/railcore/railcore/pkgs/app"
	"github.com/spf13/cobra"
)

func NewModeCommand(app *app.CoreApp) *cobra.Command {
	command := &cobra.Command{
		Use:   "mode [STOP|GO|HALT|SHORT|SIGON|DCCPROG|TAMSPROG|TESTDRIVE|OVERTEMP|POWERFAIL]",
		Short: "Get or request the track sequencer's operating mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			if len(args) == 0 {
				mode, err := app.GetModeAction()
				if err != nil {
					return err
				}
				app.P.Printf("%s\n", mode)
				return nil
			}
			return app.SetModeAction(args[0])
		},
	}

	command.Flags().BoolVarP(&app.Debug, "debug", "v", false, "Increase verbosity to the debug level")

	return command
}
