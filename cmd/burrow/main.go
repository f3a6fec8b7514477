package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/maxdollinger/burrow/internal/cli"
)

// Exit codes: the launched command's own code when it exits nonzero, 125
// when burrow fails, 0 otherwise.
func main() {
	if err := cli.Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			slog.Error(err.Error())
		}
		os.Exit(cli.ExitCode(err))
	}
}
