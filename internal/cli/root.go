// Package cli implements the command-line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/HyperSonicCTF/BUUCTF-Agent/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ____  _   _ _   _  ____ _____ _____\n" +
		" | __ )| | | | | | |/ ___|_   _|  ___|\n" +
		" |  _ \\| | | | | | | |     | | | |_\n" +
		" | |_) | |_| | |_| | |___  | | |  _|\n" +
		" |____/ \\___/ \\___/ \\____| |_| |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "buuctf-agent",
	Short: "BUUCTF Agent - autonomous CTF solving loop",
	Long:  color.CyanString(logo) + "\nAn LLM-driven solving loop with bounded session memory and human-in-the-loop control.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("buuctf-agent %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(runsCmd)
}

func printHeader(title string) {
	color.New(color.FgCyan, color.Bold).Println(title)
}
