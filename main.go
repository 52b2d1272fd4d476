package main

import (
	"os"

	"github.com/railcore/railcore/pkgs/app"
	"github.com/railcore/railcore/pkgs/cli"
	"github.com/railcore/railcore/pkgs/output"
)

func main() {
	core := app.CoreApp{P: output.ConsolePrinter{}}
	cmd := cli.NewRootCommand(&core)
	args := os.Args
	if args != nil {
		args = args[1:]
		cmd.SetArgs(args)
	}
	err := cmd.Execute()
	closeErr := core.Close()
	if err != nil {
		os.Exit(1)
	}
	if closeErr != nil {
		os.Exit(1)
	}
}
