package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/config"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/tools"
)

// summaryThreshold is the statement length above which the challenge text is
// summarized before classification.
const summaryThreshold = 128

// WorkflowOptions wires a full solving session.
type WorkflowOptions struct {
	Config       *config.Config
	Solver       provider.LLMProvider
	Analyzer     provider.LLMProvider
	Preprocessor provider.LLMProvider
	Registry     *tools.Registry
	Approver     Approver // nil means automatic mode
	Confirmer    FlagConfirmer
	Recorder     Recorder
	Log          *slog.Logger
}

// Workflow runs one challenge end to end: summarize the statement, classify
// it, then drive the solving loop.
type Workflow struct {
	cfg          *config.Config
	solverChat   provider.LLMProvider
	analyzerChat provider.LLMProvider
	preChat      provider.LLMProvider
	registry     *tools.Registry
	approver     Approver
	confirmer    FlagConfirmer
	recorder     Recorder
	prompts      *PromptSet
	repairer     *JSONRepairer
	log          *slog.Logger
}

// NewWorkflow creates a workflow from the given options.
func NewWorkflow(opts WorkflowOptions) (*Workflow, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("workflow: config is required")
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}

	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}

	repairer := NewJSONRepairer(opts.Preprocessor, opts.Config.LLM.Preprocessor.Model,
		opts.Config.Agent.RepairMaxAttempts, opts.Log)

	return &Workflow{
		cfg:          opts.Config,
		solverChat:   opts.Solver,
		analyzerChat: opts.Analyzer,
		preChat:      opts.Preprocessor,
		registry:     opts.Registry,
		approver:     opts.Approver,
		confirmer:    opts.Confirmer,
		recorder:     opts.Recorder,
		prompts:      prompts,
		repairer:     repairer,
		log:          opts.Log,
	}, nil
}

// Solve runs the full session for one challenge statement and returns the
// confirmed flag or a result sentinel string.
func (w *Workflow) Solve(ctx context.Context, problem string) (string, error) {
	problem, err := w.summarizeProblem(ctx, problem)
	if err != nil {
		return "", err
	}

	analyzer := NewAnalyzer(w.analyzerChat, w.cfg.LLM.Analyzer.Model, w.prompts, w.repairer, w.log)

	classification, err := analyzer.Classify(ctx, problem)
	if err != nil {
		return "", err
	}
	w.log.Info("Solving plan ready", "category", classification.Category)

	if w.recorder != nil {
		w.recorder.BeginRun(problem, classification.Category)
	}

	memory := NewMemory(w.solverChat, w.cfg.LLM.Solver.Model,
		w.cfg.Agent.CompressionThreshold, w.log)

	solver := NewSolver(SolverOptions{
		Problem:       problem,
		Chat:          w.solverChat,
		Model:         w.cfg.LLM.Solver.Model,
		MaxTokens:     w.cfg.LLM.Solver.MaxTokens,
		Temperature:   w.cfg.LLM.Solver.Temperature,
		Memory:        memory,
		Registry:      w.registry,
		Normalizer:    NewNormalizer(w.repairer),
		Analyzer:      analyzer,
		Prompts:       w.prompts,
		Approver:      w.approver,
		Confirmer:     w.confirmer,
		Recorder:      w.recorder,
		RetryInterval: w.cfg.Agent.RetryInterval,
		Log:           w.log,
	})

	start := time.Now()
	result, err := solver.Solve(ctx, classification.Category, classification.Solution)
	if err != nil {
		return "", err
	}
	w.log.Info("Session finished", "result", result, "elapsed", time.Since(start))
	return result, nil
}

// summarizeProblem shortens an overlong challenge statement through the
// preprocessor model. Short statements pass through untouched.
func (w *Workflow) summarizeProblem(ctx context.Context, problem string) (string, error) {
	problem = strings.TrimSpace(problem)
	if len(problem) < summaryThreshold {
		return problem, nil
	}

	prompt, err := w.prompts.Render("problem_summary", PromptContext{Question: problem})
	if err != nil {
		return "", err
	}

	resp, err := w.preChat.Chat(ctx, &provider.ChatRequest{
		Model:    w.cfg.LLM.Preprocessor.Model,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("summarize challenge: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
