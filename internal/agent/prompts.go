package agent

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsRaw []byte

// ToolInfo is the tool metadata exposed to prompt templates.
type ToolInfo struct {
	Name        string
	Description string
}

// PromptContext carries the values available to prompt templates.
type PromptContext struct {
	Question        string
	SolutionPlan    string
	HistorySummary  string
	Tools           []ToolInfo
	StepNum         int
	Content         string
	Output          string
	OriginalPurpose string
	Feedback        string
}

// PromptSet holds the parsed prompt templates keyed by name.
type PromptSet struct {
	templates map[string]*template.Template
}

// LoadPrompts parses the embedded prompt template file.
func LoadPrompts() (*PromptSet, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(promptsRaw, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	set := &PromptSet{templates: make(map[string]*template.Template, len(raw))}
	for name, text := range raw {
		tmpl, err := template.New(name).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		set.templates[name] = tmpl
	}
	return set, nil
}

// Has reports whether a template with the given name exists.
func (p *PromptSet) Has(name string) bool {
	_, ok := p.templates[name]
	return ok
}

// Render executes the named template with the given context. The output is
// whitespace-optimized before being sent to the model.
func (p *PromptSet) Render(name string, ctx PromptContext) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return OptimizeText(sb.String()), nil
}

// NextStepTemplate returns the per-category generation template name,
// falling back to the general one.
func (p *PromptSet) NextStepTemplate(category string) string {
	name := strings.ToLower(strings.TrimSpace(category)) + "_next"
	if p.Has(name) {
		return name
	}
	return "general_next"
}

var (
	multiSpace   = regexp.MustCompile(` {2,}`)
	multiNewline = regexp.MustCompile(`\n+`)
)

// OptimizeText collapses runs of spaces and blank lines to keep prompts
// compact without losing content.
func OptimizeText(text string) string {
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
