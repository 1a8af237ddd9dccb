package main

import (
	"os"

	"github.com/ledgerline/autoflow/cmd/autoflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
