package main

import (
	"fmt"
	"os"

	"resortbook/internal/cli"
)

func main() {
	if err := cli.NewRoot(cli.DefaultOpener).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
