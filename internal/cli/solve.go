package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/agent"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/config"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/logging"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/tools"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/transcript"
)

var (
	solveFile   string
	solveAuto   bool
	solveManual bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a CTF challenge",
	Long: "Reads the challenge title and description from --file or stdin and drives " +
		"the solving loop until a confirmed flag, an abort, or an early termination.",
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveFile, "file", "f", "", "File containing the challenge description (default: read stdin)")
	solveCmd.Flags().BoolVar(&solveAuto, "auto", false, "Run in automatic mode")
	solveCmd.Flags().BoolVar(&solveManual, "manual", false, "Run in manual mode (each step requires approval)")
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logs.Dir, cfg.Logs.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()

	printHeader("BUUCTF Agent")

	problem, fromStdin, err := readChallenge()
	if err != nil {
		return err
	}
	log.Debug("Challenge content", "text", problem)

	autoMode := resolveRunMode(cfg, fromStdin)

	solverProv := newProvider(cfg.LLM.Solver)
	analyzerProv := newProvider(cfg.LLM.Analyzer)
	preProv := newProvider(cfg.LLM.Preprocessor)

	registry, cleanup, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	var recorder agent.Recorder
	if cfg.Transcript.Enabled {
		store, err := transcript.Open(cfg.Transcript.Path, log.Logger)
		if err != nil {
			log.Warn("Transcript disabled", "error", err)
		} else {
			defer store.Close()
			recorder = store
		}
	}

	var approver agent.Approver
	if !autoMode {
		approver = &ConsoleApprover{In: os.Stdin, Out: os.Stdout}
	}

	workflow, err := agent.NewWorkflow(agent.WorkflowOptions{
		Config:       cfg,
		Solver:       solverProv,
		Analyzer:     analyzerProv,
		Preprocessor: preProv,
		Registry:     registry,
		Approver:     approver,
		Confirmer:    &ConsoleFlagConfirmer{In: os.Stdin, Out: os.Stdout},
		Recorder:     recorder,
		Log:          log.Logger,
	})
	if err != nil {
		return err
	}

	result, err := workflow.Solve(context.Background(), problem)
	if err != nil {
		return err
	}

	fmt.Println()
	color.New(color.FgGreen, color.Bold).Printf("Final result: %s\n", result)
	return nil
}

// readChallenge loads the challenge statement from --file or stdin. The
// second return value reports whether stdin was consumed, which disables
// interactive prompts that would otherwise compete for it.
func readChallenge() (string, bool, error) {
	if solveFile != "" {
		data, err := os.ReadFile(solveFile)
		if err != nil {
			return "", false, fmt.Errorf("read challenge file: %w", err)
		}
		return string(data), false, nil
	}

	fmt.Println("If the challenge includes attachments, place them in the attachments directory.")
	fmt.Println("Enter the challenge title and description. Finish with Ctrl+D.")
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", true, fmt.Errorf("read challenge from stdin: %w", err)
	}
	return string(data), true, nil
}

// resolveRunMode picks automatic vs manual: explicit flags win, then the
// interactive prompt when stdin is still available, then the config default.
func resolveRunMode(cfg *config.Config, stdinConsumed bool) bool {
	switch {
	case solveAuto:
		return true
	case solveManual:
		return false
	case stdinConsumed:
		return cfg.Agent.AutoMode
	default:
		return promptRunMode(os.Stdin, os.Stdout)
	}
}

func newProvider(p config.LLMProfile) provider.LLMProvider {
	return provider.NewOpenAIProvider(p.APIKey, p.APIBase, p.Model)
}

// buildRegistry registers the execution backends. The SSH session, when
// enabled, is shared between the shell tool and remote Python execution, and
// any challenge attachments are pushed to the remote host before the first
// step.
func buildRegistry(cfg *config.Config, log *logging.Logger) (*tools.Registry, func(), error) {
	registry := tools.NewRegistry()
	cleanup := func() {}

	var session *tools.SSHSession
	if cfg.Tools.SSH.Enabled {
		var err error
		session, err = tools.NewSSHSession(tools.SSHSessionConfig{
			Host:     cfg.Tools.SSH.Host,
			Port:     cfg.Tools.SSH.Port,
			Username: cfg.Tools.SSH.Username,
			Password: cfg.Tools.SSH.Password,
			Timeout:  cfg.Tools.SSH.Timeout,
		}, log.Logger)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { session.Close() }

		if entries, err := os.ReadDir(cfg.Tools.AttachmentsDir); err == nil && len(entries) > 0 {
			log.Info("Attachments detected, uploading to the remote host")
			if err := session.UploadDir(cfg.Tools.AttachmentsDir, "."); err != nil {
				log.Warn("Attachment upload failed", "error", err)
			} else {
				log.Info("Attachment upload complete")
			}
		}

		registry.Register(tools.NewShellTool(session))
	}

	if cfg.Tools.Python.Remote && session != nil {
		registry.Register(tools.NewRemotePythonTool(session))
	} else {
		registry.Register(tools.NewPythonTool(cfg.Tools.Python.Interpreter, cfg.Tools.Python.Timeout))
	}

	return registry, cleanup, nil
}
