package main

import (
	"os"

	"github.com/dwsmith1983/gwaspull/internal/commands"
)

var version = "dev"

func main() {
	root := commands.NewPullCmd(version)
	root.AddCommand(commands.NewVersionCmd(version))

	if err := root.Execute(); err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(commands.ExitCode(err))
	}
}
