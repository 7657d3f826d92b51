package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/config"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/logging"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/transcript"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded solving runs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Transcript.Enabled {
		fmt.Println("Transcript is disabled.")
		return nil
	}

	store, err := transcript.Open(cfg.Transcript.Path, logging.Discard().Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	printHeader("Recorded runs")
	for _, r := range runs {
		fmt.Printf("%s  %-8s  %3d steps  %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Category, r.Steps, firstLine(r.Problem, 60))
	}
	return nil
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' || i >= max {
			return s[:i] + "…"
		}
	}
	return s
}
