package main

import (
	"os"

	"github.com/orca-network/explorer/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
