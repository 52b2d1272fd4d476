package cli

import (
	"fmt"
	"time"

	"github.com/railcore/railcore/pkgs/app"
	"github.com/spf13/cobra"
)

func NewMMProgCommand(app *app.CoreApp) *cobra.Command {
	type MMProgArgs struct {
		Timeout uint16
	}

	cmdArgs := MMProgArgs{}
	command := &cobra.Command{
		Use:   "mmprog <address>",
		Short: "Teach a blank Motorola decoder its address on the isolated programming track",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			addr, err := parseMMAddress(args[0])
			if err != nil {
				return err
			}
			return app.ProgramMMAddressAction(addr, time.Second*time.Duration(cmdArgs.Timeout))
		},
	}

	command.Flags().BoolVarP(&app.Debug, "debug", "v", false, "Increase verbosity to the debug level")
	command.Flags().Uint16VarP(&cmdArgs.Timeout, "timeout", "", 10, "Connection timeout")

	return command
}

func parseMMAddress(raw string) (uint8, error) {
	var addr uint8
	if _, err := fmt.Sscanf(raw, "%d", &addr); err != nil {
		return 0, fmt.Errorf("invalid MM address %q: %w", raw, err)
	}
	return addr, nil
}
