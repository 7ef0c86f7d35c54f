// Command cariyactl runs month-end processing and reports from the shell.
package main

import (
	"os"

	"cariya/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
