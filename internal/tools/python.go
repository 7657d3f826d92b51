package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// PythonTool executes Python snippets. Local mode writes the snippet to a
// temp file and runs the configured interpreter; remote mode ships the
// snippet to the solving host over the shared SSH session.
type PythonTool struct {
	Interpreter string
	Timeout     time.Duration
	Remote      *SSHSession // nil means local execution
}

// NewPythonTool creates a local Python execution tool.
func NewPythonTool(interpreter string, timeout time.Duration) *PythonTool {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PythonTool{Interpreter: interpreter, Timeout: timeout}
}

// NewRemotePythonTool creates a Python tool that executes on the remote host.
func NewRemotePythonTool(session *SSHSession) *PythonTool {
	return &PythonTool{Interpreter: "python3", Timeout: 30 * time.Second, Remote: session}
}

func (t *PythonTool) Name() string { return "execute_python_code" }

func (t *PythonTool) Description() string {
	return "Execute a Python code snippet."
}

func (t *PythonTool) Parameters() map[string]any {
	return purposeContentParams("The Python code to execute.")
}

func (t *PythonTool) Execute(ctx context.Context, args map[string]any) (string, string) {
	content := GetString(args, "content", "")
	if t.Remote != nil {
		return t.executeRemotely(ctx, content)
	}
	return t.executeLocally(ctx, content)
}

func (t *PythonTool) executeLocally(ctx context.Context, content string) (string, string) {
	tmp, err := os.CreateTemp("", "py_script_*.py")
	if err != nil {
		return "", fmt.Sprintf("Tool execution error: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Sprintf("Tool execution error: %v", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Interpreter, tmp.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	out, errOut := stdout.String(), stderr.String()

	if ctx.Err() == context.DeadlineExceeded {
		errOut += fmt.Sprintf("Error: execution timed out after %v", t.Timeout)
	} else if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			errOut += fmt.Sprintf("Tool execution error: %v", err)
		}
		// Non-zero exits already surface through stderr.
	}

	return out, errOut
}

func (t *PythonTool) executeRemotely(ctx context.Context, content string) (string, string) {
	name := sanitizeRemoteName(fmt.Sprintf("py_script_%d.py", time.Now().UnixNano()))

	upload := fmt.Sprintf("cat > %s << 'PYEOF'\n%s\nPYEOF", name, content)
	if _, errOut := t.Remote.Run(ctx, upload); errOut != "" {
		return "", errOut
	}

	stdout, stderr := t.Remote.Run(ctx, fmt.Sprintf("%s %s", t.Interpreter, name))
	t.Remote.Run(ctx, fmt.Sprintf("rm -f %s", name))

	return stdout, stderr
}
