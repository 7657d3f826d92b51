package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPythonToolDefaults(t *testing.T) {
	tool := NewPythonTool("", 0)
	if tool.Interpreter != "python3" {
		t.Errorf("interpreter = %q", tool.Interpreter)
	}
	if tool.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", tool.Timeout)
	}
	if tool.Name() != "execute_python_code" {
		t.Errorf("name = %q", tool.Name())
	}
}

func TestPythonToolMissingInterpreter(t *testing.T) {
	tool := NewPythonTool("definitely-not-a-python-binary", time.Second)

	stdout, stderr := tool.Execute(context.Background(), map[string]any{
		"content": "print('hello')",
	})
	if stdout != "" {
		t.Errorf("stdout = %q", stdout)
	}
	// A missing interpreter is data for the analyzer, not a hard failure.
	if !strings.Contains(stderr, "Tool execution error:") {
		t.Errorf("stderr = %q, want a folded execution error", stderr)
	}
}

func TestPythonToolParameters(t *testing.T) {
	tool := NewPythonTool("python3", time.Second)

	params := tool.Parameters()
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatal("parameters missing properties")
	}
	for _, field := range []string{"purpose", "content"} {
		if _, ok := props[field]; !ok {
			t.Errorf("parameters missing %q field", field)
		}
	}
}

func TestSanitizeRemoteName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"py_script_123.py", "py_script_123.py"},
		{"evil; rm -rf /.py", "evil__rm_-rf__.py"},
		{"a b$c.py", "a_b_c.py"},
	}
	for _, tc := range cases {
		if got := sanitizeRemoteName(tc.in); got != tc.want {
			t.Errorf("sanitizeRemoteName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
