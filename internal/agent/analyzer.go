package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
)

// analyzerOutputCap bounds the raw command output forwarded to the analysis
// prompt.
const analyzerOutputCap = 4096

// Classification is the upfront judgment of a challenge.
type Classification struct {
	Category string `json:"category"`
	Solution string `json:"solution"`
}

// Analyzer wraps the judgment calls that interpret the challenge and each
// step's output.
type Analyzer struct {
	chat     provider.LLMProvider
	model    string
	prompts  *PromptSet
	repairer Repairer
	log      *slog.Logger
}

// NewAnalyzer creates an analyzer over the given provider and model.
func NewAnalyzer(chat provider.LLMProvider, model string, prompts *PromptSet, repairer Repairer, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{chat: chat, model: model, prompts: prompts, repairer: repairer, log: log}
}

// Classify categorizes the challenge and proposes a solving plan.
func (a *Analyzer) Classify(ctx context.Context, problem string) (Classification, error) {
	prompt, err := a.prompts.Render("problem_analyze", PromptContext{Question: problem})
	if err != nil {
		return Classification{}, err
	}

	var result Classification
	if err := a.completeJSON(ctx, prompt, &result); err != nil {
		return Classification{}, fmt.Errorf("classify challenge: %w", err)
	}
	a.log.Info("Challenge classified", "category", result.Category)
	return result, nil
}

// AnalyzeStep judges one step's output against the plan and history.
func (a *Analyzer) AnalyzeStep(ctx context.Context, mem *Memory, stepNum int, problem, content, output, plan string) (AnalysisResult, error) {
	prompt, err := a.prompts.Render("step_analysis", PromptContext{
		Question:       problem,
		SolutionPlan:   plan,
		HistorySummary: mem.Summary(true),
		StepNum:        stepNum,
		Content:        content,
		Output:         truncate(output, analyzerOutputCap),
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	var result AnalysisResult
	if err := a.completeJSON(ctx, prompt, &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze step %d: %w", stepNum, err)
	}
	return result, nil
}

// completeJSON sends a prompt and decodes the reply into target, running the
// repair protocol when the reply is not valid JSON.
func (a *Analyzer) completeJSON(ctx context.Context, prompt string, target any) error {
	resp, err := a.chat.Chat(ctx, &provider.ChatRequest{
		Model:    a.model,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return err
	}

	text := stripCodeFences(resp.Content)
	if err := json.Unmarshal([]byte(text), target); err != nil {
		if a.repairer == nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		fixed, rerr := a.repairer.Repair(ctx, text, err)
		if rerr != nil {
			return fmt.Errorf("%w: repair failed: %v", ErrMalformedResponse, rerr)
		}
		if err := json.Unmarshal([]byte(fixed), target); err != nil {
			return fmt.Errorf("%w: repaired document: %v", ErrMalformedResponse, err)
		}
	}
	return nil
}
