package main

import (
	"fmt"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	deps := &cli.Dependencies{Out: os.Stdout}
	return cli.NewRootCmd(deps).Execute()
}
