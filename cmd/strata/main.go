package main

import (
	"fmt"
	"os"

	"github.com/danieljhkim/strata/internal/cli"
	"github.com/danieljhkim/strata/internal/errdefs"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(errdefs.ExitCode(err))
	}
}
