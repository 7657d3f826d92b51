package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/tools"
)

// State is the orchestrator's position in the per-turn state machine.
type State int

const (
	StateGenerating State = iota
	StateAwaitingApproval
	StateExecuting
	StateAnalyzing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateExecuting:
		return "executing"
	case StateAnalyzing:
		return "analyzing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ResultAborted is returned when the operator aborts at the approval
// checkpoint; ResultTerminated when the analyzer advises stopping early.
const (
	ResultAborted    = "Solving aborted"
	ResultTerminated = "Flag not found: terminated early"
)

// Decision is the operator's choice at the approval checkpoint.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionRevise
	DecisionAbort
)

// Approver reviews a proposed action in manual mode. A revise decision
// carries free-text feedback for the reflection cycle.
type Approver interface {
	Review(action *Action) (Decision, string)
}

// FlagConfirmer judges a candidate flag before it is accepted as the final
// result.
type FlagConfirmer interface {
	Confirm(candidate string) bool
}

// Recorder receives completed turns for the audit transcript. All methods
// must tolerate being called on a nil implementation value.
type Recorder interface {
	BeginRun(problem, category string)
	RecordStep(rec StepRecord)
	RecordFlag(step int, candidate string, confirmed bool)
}

// Solver runs the step orchestration loop for one challenge.
type Solver struct {
	problem     string
	chat        provider.LLMProvider
	model       string
	maxTokens   int
	temperature float64

	memory     *Memory
	registry   *tools.Registry
	normalizer *Normalizer
	analyzer   *Analyzer
	prompts    *PromptSet

	approver  Approver // nil means automatic mode
	confirmer FlagConfirmer
	recorder  Recorder

	retryInterval time.Duration
	log           *slog.Logger

	state State
}

// SolverOptions configures a Solver.
type SolverOptions struct {
	Problem       string
	Chat          provider.LLMProvider
	Model         string
	MaxTokens     int
	Temperature   float64
	Memory        *Memory
	Registry      *tools.Registry
	Normalizer    *Normalizer
	Analyzer      *Analyzer
	Prompts       *PromptSet
	Approver      Approver
	Confirmer     FlagConfirmer
	Recorder      Recorder
	RetryInterval time.Duration
	Log           *slog.Logger
}

// NewSolver creates a solver for one challenge session.
func NewSolver(opts SolverOptions) *Solver {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 10 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	return &Solver{
		problem:       opts.Problem,
		chat:          opts.Chat,
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		temperature:   opts.Temperature,
		memory:        opts.Memory,
		registry:      opts.Registry,
		normalizer:    opts.Normalizer,
		analyzer:      opts.Analyzer,
		prompts:       opts.Prompts,
		approver:      opts.Approver,
		confirmer:     opts.Confirmer,
		recorder:      opts.Recorder,
		retryInterval: opts.RetryInterval,
		log:           opts.Log,
		state:         StateGenerating,
	}
}

// State returns the orchestrator's current state.
func (s *Solver) State() State { return s.state }

// Memory returns the session memory (read access for callers and tests).
func (s *Solver) Memory() *Memory { return s.memory }

// Solve runs the loop until a confirmed flag, an operator abort, or an
// early-termination signal. It returns the confirmed flag or a result
// sentinel string.
func (s *Solver) Solve(ctx context.Context, category, plan string) (string, error) {
	stepCount := 0

	for {
		stepCount++
		s.log.Info("Thinking through step", "step", stepCount)

		action, err := s.generateUntilAction(ctx, category, plan)
		if err != nil {
			return "", err
		}

		if s.approver != nil {
			s.state = StateAwaitingApproval
			approved, revised, err := s.manualApproval(ctx, action)
			if err != nil {
				return "", err
			}
			if !approved {
				s.state = StateTerminated
				s.log.Info("Solving aborted by the operator")
				return ResultAborted, nil
			}
			action = revised
		}

		s.state = StateExecuting
		output := s.registry.Execute(ctx, action.ToolName, action.Arguments)
		s.log.Debug("Command output", "step", stepCount, "output", output)

		s.state = StateAnalyzing
		analysis, err := s.analyzer.AnalyzeStep(ctx, s.memory, stepCount, s.problem, action.Content(), output, plan)
		if err != nil {
			return "", err
		}

		// A confirmed flag short-circuits before the memory write; an
		// unconfirmed one is logged and the turn is still recorded.
		if analysis.FlagFound {
			s.log.Info("Potential flag reported", "flag", analysis.Flag)
			confirmed := s.confirmer != nil && s.confirmer.Confirm(analysis.Flag)
			if s.recorder != nil {
				s.recorder.RecordFlag(stepCount, analysis.Flag, confirmed)
			}
			if confirmed {
				s.state = StateTerminated
				return analysis.Flag, nil
			}
			s.log.Info("Flag rejected, continuing")
		}

		rec := StepRecord{
			Step:     stepCount,
			Purpose:  action.Purpose(),
			Content:  action.Content(),
			Output:   output,
			Analysis: analysis,
		}
		s.memory.AddStep(ctx, rec)
		if s.recorder != nil {
			s.recorder.RecordStep(rec)
		}

		if analysis.Terminate {
			s.state = StateTerminated
			s.log.Info("Analyzer advised stopping early")
			return ResultTerminated, nil
		}

		s.state = StateGenerating
	}
}

// generateUntilAction requests the next action until one is produced. Void
// results wait a fixed interval and retry; there is no retry ceiling, so the
// loop only exits with an action, a repair failure, or context cancellation.
func (s *Solver) generateUntilAction(ctx context.Context, category, plan string) (*Action, error) {
	s.state = StateGenerating
	for {
		action, err := s.generateNextStep(ctx, category, plan)
		if err == nil {
			return action, nil
		}
		if !errors.Is(err, ErrNoAction) {
			return nil, err
		}

		s.log.Warn("Failed to generate an action, retrying", "wait", s.retryInterval)
		timer := time.NewTimer(s.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// generateNextStep asks the model for the next action using the
// category-specific template.
func (s *Solver) generateNextStep(ctx context.Context, category, plan string) (*Action, error) {
	prompt, err := s.prompts.Render(s.prompts.NextStepTemplate(category), PromptContext{
		Question:       s.problem,
		SolutionPlan:   plan,
		HistorySummary: s.memory.Summary(true),
		Tools:          s.toolInfos(),
	})
	if err != nil {
		return nil, err
	}
	return s.requestAction(ctx, prompt)
}

// reflect regenerates an action from operator feedback.
func (s *Solver) reflect(ctx context.Context, originalPurpose, feedback string) (*Action, error) {
	prompt, err := s.prompts.Render("reflection", PromptContext{
		Question:        s.problem,
		OriginalPurpose: originalPurpose,
		Feedback:        feedback,
		HistorySummary:  s.memory.Summary(true),
		Tools:           s.toolInfos(),
	})
	if err != nil {
		return nil, err
	}
	return s.requestAction(ctx, prompt)
}

func (s *Solver) requestAction(ctx context.Context, prompt string) (*Action, error) {
	resp, err := s.chat.Chat(ctx, &provider.ChatRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Tools:       s.toolDefinitions(),
	})
	if err != nil {
		s.log.Warn("Generation request failed", "error", err)
		return nil, ErrNoAction
	}

	action, err := s.normalizer.Normalize(ctx, resp)
	if err != nil {
		return nil, err
	}
	s.log.Info("Tool selected", "tool", action.ToolName, "purpose", action.Purpose())
	s.log.Debug("Proposed content", "content", action.Content())
	return action, nil
}

// manualApproval presents the proposed action until the operator approves,
// revises, or aborts. Revisions run the reflection cycle and return here
// with the revised action.
func (s *Solver) manualApproval(ctx context.Context, action *Action) (bool, *Action, error) {
	for {
		decision, feedback := s.approver.Review(action)
		switch decision {
		case DecisionApprove:
			return true, action, nil
		case DecisionAbort:
			return false, nil, nil
		case DecisionRevise:
			revised, err := s.reflect(ctx, action.Purpose(), feedback)
			if err != nil {
				if errors.Is(err, ErrNoAction) {
					s.log.Warn("Reflection produced no action, keeping the previous proposal")
					continue
				}
				return false, nil, err
			}
			action = revised
		default:
			return false, nil, fmt.Errorf("unknown approval decision %d", decision)
		}
	}
}

func (s *Solver) toolInfos() []ToolInfo {
	list := s.registry.List()
	out := make([]ToolInfo, 0, len(list))
	for _, t := range list {
		out = append(out, ToolInfo{Name: t.Name(), Description: t.Description()})
	}
	return out
}

func (s *Solver) toolDefinitions() []provider.ToolDefinition {
	list := s.registry.List()
	out := make([]provider.ToolDefinition, 0, len(list))
	for _, t := range list {
		out = append(out, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}
