package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
)

func TestNormalizeDirectToolCall(t *testing.T) {
	n := NewNormalizer(nil)
	resp := &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{
			Name: "execute_shell_command",
			Arguments: map[string]any{
				"purpose": "List the home directory",
				"content": "ls -la ~",
			},
		}},
	}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if action.ToolName != "execute_shell_command" {
		t.Errorf("tool = %q", action.ToolName)
	}
	if action.Purpose() != "List the home directory" || action.Content() != "ls -la ~" {
		t.Errorf("arguments not preserved: %+v", action.Arguments)
	}
}

func TestNormalizeContentJSON(t *testing.T) {
	n := NewNormalizer(nil)
	resp := &provider.ChatResponse{
		Content: `{"tool_calls":[{"name":"execute_python_code","arguments":{"purpose":"Decode base64","content":"print(1)"}}]}`,
	}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if action.ToolName != "execute_python_code" {
		t.Errorf("tool = %q", action.ToolName)
	}
	if action.Content() != "print(1)" {
		t.Errorf("content = %q", action.Content())
	}
}

func TestNormalizeFencedContent(t *testing.T) {
	n := NewNormalizer(nil)
	resp := &provider.ChatResponse{
		Content: "```json\n{\"tool_calls\":[{\"name\":\"execute_shell_command\",\"arguments\":{\"content\":\"id\"}}]}\n```",
	}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if action.ToolName != "execute_shell_command" || action.Content() != "id" {
		t.Errorf("fenced payload mishandled: %s %q", action.ToolName, action.Content())
	}
}

func TestNormalizeStringEncodedArguments(t *testing.T) {
	n := NewNormalizer(nil)
	resp := &provider.ChatResponse{
		Content: `{"tool_calls":[{"name":"execute_shell_command","arguments":"{\"purpose\":\"p\",\"content\":\"whoami\"}"}]}`,
	}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if action.Content() != "whoami" {
		t.Errorf("string-encoded arguments not decoded: %+v", action.Arguments)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	n := NewNormalizer(nil)
	resp := &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{Name: "execute_shell_command", Arguments: map[string]any{}}},
	}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if action.Purpose() != "Execute action" {
		t.Errorf("default purpose = %q", action.Purpose())
	}
	if action.Content() != "" {
		t.Errorf("default content = %q", action.Content())
	}
}

func TestNormalizeNoAction(t *testing.T) {
	n := NewNormalizer(nil)

	cases := []*provider.ChatResponse{
		nil,
		{Content: ""},
		{Content: `{"tool_calls":[]}`},
	}
	for i, resp := range cases {
		if _, err := n.Normalize(context.Background(), resp); !errors.Is(err, ErrNoAction) {
			t.Errorf("case %d: err = %v, want ErrNoAction", i, err)
		}
	}
}

func TestNormalizeRepairsMalformedContent(t *testing.T) {
	repairer := &fixedRepairer{out: `{"tool_calls":[{"name":"execute_shell_command","arguments":{"content":"ls"}}]}`}
	n := NewNormalizer(repairer)

	// Trailing comma makes the document invalid.
	resp := &provider.ChatResponse{Content: `{"tool_calls":[{"name":"execute_shell_command",}]}`}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if repairer.calls != 1 {
		t.Errorf("repairer called %d times, want 1", repairer.calls)
	}
	if action.ToolName != "execute_shell_command" || action.Content() != "ls" {
		t.Errorf("repaired action wrong: %s %q", action.ToolName, action.Content())
	}
}

func TestNormalizeValidInputSkipsRepair(t *testing.T) {
	repairer := &fixedRepairer{out: "{}"}
	n := NewNormalizer(repairer)

	resp := &provider.ChatResponse{
		Content: `{"tool_calls":[{"name":"execute_shell_command","arguments":{"content":"ls"}}]}`,
	}
	if _, err := n.Normalize(context.Background(), resp); err != nil {
		t.Fatal(err)
	}
	if repairer.calls != 0 {
		t.Errorf("valid input must not touch the repairer, got %d calls", repairer.calls)
	}
}

func TestNormalizeRepairsRawToolArguments(t *testing.T) {
	repairer := &fixedRepairer{out: `{"purpose":"p","content":"cat flag"}`}
	n := NewNormalizer(repairer)

	resp := &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{
			Name:         "execute_shell_command",
			RawArguments: `{"purpose":"p","content":"cat flag",}`,
		}},
	}

	action, err := n.Normalize(context.Background(), resp)
	if err != nil {
		t.Fatal(err)
	}
	if action.Content() != "cat flag" {
		t.Errorf("content = %q", action.Content())
	}
}

func TestNormalizeRepairFailure(t *testing.T) {
	repairer := &fixedRepairer{err: errors.New("model unavailable")}
	n := NewNormalizer(repairer)

	resp := &provider.ChatResponse{Content: `{"broken":`}
	if _, err := n.Normalize(context.Background(), resp); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}
