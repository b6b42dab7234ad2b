package main

import (
	"os"

	"github.com/Iron-Ham/maestro/internal/cmd"
	"github.com/Iron-Ham/maestro/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Cobra already printed the error.
		if errors.Is(err, errors.ErrInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
