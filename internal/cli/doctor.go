package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	printHeader("Configuration check")

	path, _ := config.ConfigPath()
	fmt.Printf("Config file: %s\n\n", path)

	checkProfile("solver", cfg.LLM.Solver)
	checkProfile("analyzer", cfg.LLM.Analyzer)
	checkProfile("preprocessor", cfg.LLM.Preprocessor)

	fmt.Println()
	if cfg.Tools.SSH.Enabled {
		if cfg.Tools.SSH.Host == "" || cfg.Tools.SSH.Username == "" {
			warn("ssh: enabled but host/username missing")
		} else {
			ok(fmt.Sprintf("ssh: %s@%s:%d", cfg.Tools.SSH.Username, cfg.Tools.SSH.Host, cfg.Tools.SSH.Port))
		}
	} else {
		fmt.Println("ssh: disabled (remote shell tool unavailable)")
	}
	fmt.Printf("python: %s (timeout %v, remote=%v)\n", cfg.Tools.Python.Interpreter, cfg.Tools.Python.Timeout, cfg.Tools.Python.Remote)

	fmt.Println()
	fmt.Printf("compression threshold: %d\n", cfg.Agent.CompressionThreshold)
	fmt.Printf("retry interval: %v\n", cfg.Agent.RetryInterval)
	if cfg.Agent.RepairMaxAttempts == 0 {
		fmt.Println("json repair: retry until valid")
	} else {
		fmt.Printf("json repair: capped at %d attempts\n", cfg.Agent.RepairMaxAttempts)
	}
	if cfg.Transcript.Enabled {
		ok("transcript: " + cfg.Transcript.Path)
	} else {
		fmt.Println("transcript: disabled")
	}

	return nil
}

func checkProfile(name string, p config.LLMProfile) {
	if p.APIKey == "" {
		warn(fmt.Sprintf("llm.%s: no API key configured (set OPENAI_API_KEY or the config file)", name))
		return
	}
	ok(fmt.Sprintf("llm.%s: %s", name, p.Model))
}

func ok(msg string) {
	color.New(color.FgGreen).Printf("✔ %s\n", msg)
}

func warn(msg string) {
	color.New(color.FgYellow).Printf("⚠ %s\n", msg)
}
