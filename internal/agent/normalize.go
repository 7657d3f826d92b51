package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
)

// ErrNoAction is returned when a reply carries no tool invocation at all.
// The caller treats it as "no action produced" and retries generation.
var ErrNoAction = errors.New("no action produced")

// ErrMalformedResponse is returned when a reply cannot be normalized even
// after repair.
var ErrMalformedResponse = errors.New("malformed model response")

// defaultPurpose fills the purpose argument when the model omits it.
const defaultPurpose = "Execute action"

// Action is the canonical tool invocation produced from a model reply.
type Action struct {
	ToolName  string
	Arguments map[string]any
}

// Purpose returns the action's purpose argument.
func (a *Action) Purpose() string {
	if s, ok := a.Arguments["purpose"].(string); ok {
		return s
	}
	return defaultPurpose
}

// Content returns the action's content argument.
func (a *Action) Content() string {
	if s, ok := a.Arguments["content"].(string); ok {
		return s
	}
	return ""
}

// Repairer rewrites malformed JSON into valid JSON.
type Repairer interface {
	Repair(ctx context.Context, malformed string, parseErr error) (string, error)
}

// Normalizer converts raw model replies into canonical actions. Replies may
// carry a direct structured tool call or a free-text blob containing JSON;
// either way the result is a complete {tool_name, arguments} record with
// purpose and content always present.
type Normalizer struct {
	repairer Repairer
}

// NewNormalizer creates a normalizer backed by the given repair collaborator.
func NewNormalizer(repairer Repairer) *Normalizer {
	return &Normalizer{repairer: repairer}
}

// Normalize produces the canonical action for a reply. Valid input never
// touches the repair protocol; malformed payloads are repaired once and
// re-parsed.
func (n *Normalizer) Normalize(ctx context.Context, resp *provider.ChatResponse) (*Action, error) {
	if resp == nil {
		return nil, ErrNoAction
	}

	// Case 1: the tool_calls field is populated directly.
	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		args := call.Arguments
		if args == nil && call.RawArguments != "" {
			fixed, err := n.repair(ctx, call.RawArguments, errors.New("invalid tool call arguments"))
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal([]byte(fixed), &args); err != nil {
				return nil, fmt.Errorf("%w: repaired arguments: %v", ErrMalformedResponse, err)
			}
		}
		return canonical(call.Name, args), nil
	}

	// Case 2: the message content is a JSON document.
	text := stripCodeFences(resp.Content)
	if text == "" {
		return nil, ErrNoAction
	}

	var doc struct {
		ToolCalls []struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		fixed, rerr := n.repair(ctx, text, err)
		if rerr != nil {
			return nil, rerr
		}
		if err := json.Unmarshal([]byte(fixed), &doc); err != nil {
			return nil, fmt.Errorf("%w: repaired document: %v", ErrMalformedResponse, err)
		}
	}

	if len(doc.ToolCalls) == 0 {
		return nil, ErrNoAction
	}

	first := doc.ToolCalls[0]
	var args map[string]any
	if len(first.Arguments) > 0 {
		// Arguments may be a nested object or a JSON-encoded string.
		if err := json.Unmarshal(first.Arguments, &args); err != nil {
			var encoded string
			if err := json.Unmarshal(first.Arguments, &encoded); err == nil {
				json.Unmarshal([]byte(encoded), &args)
			}
		}
	}
	return canonical(first.Name, args), nil
}

func (n *Normalizer) repair(ctx context.Context, malformed string, parseErr error) (string, error) {
	if n.repairer == nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)
	}
	fixed, err := n.repairer.Repair(ctx, malformed, parseErr)
	if err != nil {
		return "", fmt.Errorf("%w: repair failed: %v", ErrMalformedResponse, err)
	}
	return fixed, nil
}

// canonical fills the required purpose and content arguments so downstream
// consumers never see missing fields.
func canonical(name string, args map[string]any) *Action {
	if args == nil {
		args = map[string]any{}
	}
	if _, ok := args["purpose"].(string); !ok {
		args["purpose"] = defaultPurpose
	}
	if _, ok := args["content"].(string); !ok {
		args["content"] = ""
	}
	return &Action{ToolName: name, Arguments: args}
}
