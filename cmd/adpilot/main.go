package main

import (
	"os"

	"github.com/adpilot/adpilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
