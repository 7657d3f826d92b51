// Package main is the entry point for the buuctf-agent CLI.
package main

import (
	"os"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
