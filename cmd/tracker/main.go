package main

import (
	"os"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/cmd"
)

func main() {
	executed, err := cmd.NewRootCmd().ExecuteC()
	if err != nil {
		cli.NewErrorHandler(cli.GetOptions(executed).Verbose).Handle(err)
		os.Exit(1)
	}
}
