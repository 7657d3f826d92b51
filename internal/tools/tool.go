// Package tools provides the tool framework and execution backends for the
// agent.
package tools

import (
	"context"
	"fmt"
)

// Tool is the interface that all agent tools must implement.
//
// Execute never returns an error: backends fold internal failures into the
// stdout/stderr strings so a failed command is data for the analyzer, not a
// control-flow fault.
type Tool interface {
	// Name returns the tool identifier used in function calls.
	Name() string
	// Description returns a human-readable description for the LLM.
	Description() string
	// Parameters returns the JSON Schema for tool parameters. Every tool
	// takes at least the required "purpose" and "content" string fields.
	Parameters() map[string]any
	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (stdout, stderr string)
}

// Registry manages tool registration and execution. Tools are registered
// explicitly at startup; there is no discovery mechanism.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// Definitions returns tool definitions in OpenAI function-call format.
func (r *Registry) Definitions() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name(),
				"description": tool.Description(),
				"parameters":  tool.Parameters(),
			},
		})
	}
	return result
}

// Execute runs a tool by name and returns its combined output. An unknown
// tool name or a panicking backend is converted into the output string; the
// caller always gets text to feed the analyzer.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (output string) {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: tool '%s' was not found", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			output = fmt.Sprintf("Tool execution error: %v", rec)
		}
	}()

	stdout, stderr := tool.Execute(ctx, args)
	return stdout + stderr
}

// GetString extracts a string argument with a default value.
func GetString(args map[string]any, key string, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// purposeContentParams is the shared schema for tools that take the
// standard purpose/content argument pair.
func purposeContentParams(contentDesc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"purpose": map[string]any{
				"type":        "string",
				"description": "Explain why this step is required.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": contentDesc,
			},
		},
		"required": []string{"purpose", "content"},
	}
}
