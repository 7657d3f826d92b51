package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
)

// JSONRepairer rewrites malformed JSON by resubmitting it to the model with
// the parse error, looping until the reply parses. It never returns
// malformed text.
type JSONRepairer struct {
	chat  provider.LLMProvider
	model string
	log   *slog.Logger

	// MaxAttempts caps the repair loop as a safety valve. Zero preserves
	// the retry-until-valid contract.
	MaxAttempts int
}

// NewJSONRepairer creates a repairer using the given provider and model.
func NewJSONRepairer(chat provider.LLMProvider, model string, maxAttempts int, log *slog.Logger) *JSONRepairer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &JSONRepairer{chat: chat, model: model, log: log, MaxAttempts: maxAttempts}
}

// Repair returns a valid JSON rendition of the malformed text. The returned
// document preserves the original keys and values; only the syntax is fixed.
func (r *JSONRepairer) Repair(ctx context.Context, malformed string, parseErr error) (string, error) {
	prompt := fmt.Sprintf(
		"The following string is invalid JSON. Repair it so that it becomes valid JSON.\n"+
			"Return only the corrected JSON. Do not add any extra narration.\n"+
			"Preserve every original key and value without altering their meaning.\n\n"+
			"Malformed JSON: %s\n"+
			"Error message: %v", malformed, parseErr)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := r.chat.Chat(ctx, &provider.ChatRequest{
			Model:    r.model,
			Messages: []provider.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", fmt.Errorf("repair call: %w", err)
		}

		fixed := stripCodeFences(strings.TrimSpace(resp.Content))
		if json.Valid([]byte(fixed)) {
			if attempt > 1 {
				r.log.Debug("JSON repaired", "attempts", attempt)
			}
			return fixed, nil
		}

		r.log.Debug("Repair reply still invalid, retrying", "attempt", attempt)
		if r.MaxAttempts > 0 && attempt >= r.MaxAttempts {
			return "", fmt.Errorf("repair gave up after %d attempts", attempt)
		}
	}
}

// stripCodeFences removes a surrounding markdown code fence, which models
// often wrap around JSON payloads.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (```json).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
