// Package agent implements the core solving loop, its session memory, and
// the response normalization layer.
package agent

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
)

const (
	// commandResultCap bounds the output excerpt stored in the "command"
	// key fact.
	commandResultCap = 256
	// summaryOutputCap bounds the per-step output shown in the rendered
	// memory summary.
	summaryOutputCap = 512
	// compactionKeepLast is the detail tail retained after compaction for
	// continuity.
	compactionKeepLast = 4
)

// AnalysisResult is the structured judgment of one step.
type AnalysisResult struct {
	Analysis  string `json:"analysis"`
	Success   bool   `json:"success"`
	FlagFound bool   `json:"flag_found"`
	Flag      string `json:"flag,omitempty"`
	Terminate bool   `json:"terminate"`

	// successKnown records whether the success field was present in the
	// source document. Failure counters only consider records whose
	// analysis explicitly reported success=false.
	successKnown bool
}

// UnmarshalJSON decodes an analysis document, tolerating extra free-form
// fields and tracking whether success was explicitly reported.
func (a *AnalysisResult) UnmarshalJSON(data []byte) error {
	type alias struct {
		Analysis  string `json:"analysis"`
		Success   *bool  `json:"success"`
		FlagFound bool   `json:"flag_found"`
		Flag      string `json:"flag"`
		Terminate bool   `json:"terminate"`
	}
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Analysis = aux.Analysis
	a.FlagFound = aux.FlagFound
	a.Flag = aux.Flag
	a.Terminate = aux.Terminate
	if aux.Success != nil {
		a.Success = *aux.Success
		a.successKnown = true
	}
	return nil
}

// NewAnalysisResult builds a complete result programmatically (tests and
// internal callers). Success is treated as explicitly reported.
func NewAnalysisResult(analysis string, success, flagFound bool, flag string, terminate bool) AnalysisResult {
	return AnalysisResult{
		Analysis:     analysis,
		Success:      success,
		FlagFound:    flagFound,
		Flag:         flag,
		Terminate:    terminate,
		successKnown: true,
	}
}

// Failed reports whether the analysis explicitly judged the step a failure.
func (a AnalysisResult) Failed() bool {
	return a.successKnown && !a.Success
}

// StepRecord is one completed turn of the solving loop. Records are
// immutable once appended.
type StepRecord struct {
	Step     int
	Purpose  string
	Content  string
	Output   string
	Analysis AnalysisResult
}

// CompressedBlock is one compaction result. Exactly one of the structured
// fields or the degraded fields is populated.
type CompressedBlock struct {
	KeyFindings     []string `json:"key_findings,omitempty"`
	FailedAttempts  []string `json:"failed_attempts,omitempty"`
	CurrentStatus   string   `json:"current_status,omitempty"`
	NextSteps       []string `json:"next_steps,omitempty"`
	FallbackSummary string   `json:"fallback_summary,omitempty"`
	Error           string   `json:"error,omitempty"`
	SourceSteps     int      `json:"source_steps"`
}

// Degraded reports whether the block came from a failed compaction attempt.
func (b CompressedBlock) Degraded() bool {
	return b.FallbackSummary != "" || b.Error != ""
}

// Memory is the bounded, self-compacting session memory. It is mutated only
// by the solving loop on its own goroutine; no locking is required.
type Memory struct {
	chat      provider.LLMProvider
	model     string
	maxTokens int
	log       *slog.Logger

	threshold int

	history    []StepRecord
	compressed []CompressedBlock

	factKeys  []string
	factVals  map[string]string
	failures  map[string]int
}

// NewMemory creates a session memory. The provider is used for compaction
// calls; threshold is the active-history length that triggers compaction.
func NewMemory(chat provider.LLMProvider, model string, threshold int, log *slog.Logger) *Memory {
	if threshold <= 0 {
		threshold = 5
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Memory{
		chat:      chat,
		model:     model,
		maxTokens: 1024,
		log:       log,
		threshold: threshold,
		factVals:  map[string]string{},
		failures:  map[string]int{},
	}
}

// StepCount returns the number of records currently in the active history.
func (m *Memory) StepCount() int { return len(m.history) }

// CompressedBlocks returns the compaction results recorded so far.
func (m *Memory) CompressedBlocks() []CompressedBlock {
	out := make([]CompressedBlock, len(m.compressed))
	copy(out, m.compressed)
	return out
}

// FailureCount returns the recorded failure count for an action's content.
func (m *Memory) FailureCount(content string) int { return m.failures[content] }

// AddStep appends a completed step, extracts key facts, tracks failures,
// and triggers compaction when the active history reaches the threshold.
func (m *Memory) AddStep(ctx context.Context, rec StepRecord) {
	m.history = append(m.history, rec)

	m.extractKeyFacts(rec)

	if rec.Analysis.Failed() {
		m.failures[rec.Content]++
	}

	if len(m.history) >= m.threshold {
		m.Compress(ctx)
	}
}

// setFact inserts or overwrites a key fact, preserving insertion order so
// "most recent" slices are stable.
func (m *Memory) setFact(key, value string) {
	if _, exists := m.factVals[key]; !exists {
		m.factKeys = append(m.factKeys, key)
	}
	m.factVals[key] = value
}

func (m *Memory) extractKeyFacts(rec StepRecord) {
	// The single "command" fact is overwritten every step.
	m.setFact("command", fmt.Sprintf("Command: %s, Result: %s", rec.Content, truncate(rec.Output, commandResultCap)))

	// Notable findings accumulate, keyed by a fingerprint of their text.
	analysis := rec.Analysis.Analysis
	lower := strings.ToLower(analysis)
	if strings.Contains(lower, "key finding") {
		m.setFact("finding:"+fingerprint(analysis), analysis)
	}
}

// recentFacts returns up to n of the most recently inserted key facts.
func (m *Memory) recentFacts(n int) []string {
	start := len(m.factKeys) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, n)
	for _, k := range m.factKeys[start:] {
		out = append(out, m.factVals[k])
	}
	return out
}

// compressionInstruction is the fixed tail of the compaction prompt.
const compressionInstruction = "You are a CTF solving assistant. Compress the solving history by completing these tasks:\n" +
	"1. Identify key technical findings and discoveries.\n" +
	"2. Record solutions that were attempted but failed.\n" +
	"3. Summarise the current progress and suggest next steps.\n" +
	"4. Return a JSON object with the structure:\n" +
	"{\n" +
	"  \"key_findings\": [\"Finding 1\", \"Finding 2\"],\n" +
	"  \"failed_attempts\": [\"Command 1\", \"Command 2\"],\n" +
	"  \"current_status\": \"Status description\",\n" +
	"  \"next_steps\": [\"Suggestion 1\", \"Suggestion 2\"]\n" +
	"}\n\n" +
	"History:\n"

// Compress summarizes the active history into one compressed block and
// truncates the history to its tail. The truncation is unconditional: a
// failed summarization call or unparseable reply stores a degraded block but
// never leaves the history above the threshold.
func (m *Memory) Compress(ctx context.Context) {
	if len(m.history) == 0 {
		return
	}
	m.log.Info("Compacting memory", "steps", len(m.history))

	sourceSteps := len(m.history)
	block := m.summarize(ctx)
	block.SourceSteps = sourceSteps

	for _, attempt := range block.FailedAttempts {
		m.failures[attempt]++
	}

	m.compressed = append(m.compressed, block)

	keep := compactionKeepLast
	if keep > len(m.history) {
		keep = len(m.history)
	}
	m.history = append([]StepRecord(nil), m.history[len(m.history)-keep:]...)
}

func (m *Memory) summarize(ctx context.Context) CompressedBlock {
	var prompt strings.Builder
	prompt.WriteString(compressionInstruction)

	prompt.WriteString("Key facts summary:\n")
	for _, fact := range m.recentFacts(5) {
		prompt.WriteString("- " + fact + "\n")
	}

	for i, rec := range m.history {
		fmt.Fprintf(&prompt, "\nStep %d:\n", i+1)
		fmt.Fprintf(&prompt, "- Purpose: %s\n", rec.Purpose)
		fmt.Fprintf(&prompt, "- Command: %s\n", rec.Content)
		fmt.Fprintf(&prompt, "- Analysis: %s\n", rec.Analysis.Analysis)
	}

	resp, err := m.chat.Chat(ctx, &provider.ChatRequest{
		Model:     m.model,
		Messages:  []provider.Message{{Role: "user", Content: OptimizeText(prompt.String())}},
		MaxTokens: m.maxTokens,
	})
	if err != nil {
		m.log.Warn("Memory compression failed", "error", err)
		return CompressedBlock{Error: fmt.Sprintf("Compression failed: %v", err)}
	}

	raw := strings.TrimSpace(resp.Content)
	var block CompressedBlock
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &block); err != nil {
		m.log.Warn("Unable to parse compressed memory", "error", err)
		return CompressedBlock{FallbackSummary: raw}
	}

	m.log.Info("Memory compression succeeded", "findings", len(block.KeyFindings))
	return block
}

// Summary renders the memory for prompting: recent key facts, the latest
// compressed blocks, then the active history in full. This text is the only
// channel by which past context re-enters future prompts.
func (m *Memory) Summary(includeKeyFacts bool) string {
	var sb strings.Builder

	if includeKeyFacts && len(m.factKeys) > 0 {
		sb.WriteString("Key facts:\n")
		for _, fact := range m.recentFacts(10) {
			sb.WriteString("- " + fact + "\n")
		}
		sb.WriteString("\n")
	}

	if len(m.compressed) > 0 {
		sb.WriteString("Compressed memory blocks:\n")
		start := len(m.compressed) - 3
		if start < 0 {
			start = 0
		}
		for i := start; i < len(m.compressed); i++ {
			block := m.compressed[i]
			fmt.Fprintf(&sb, "Block #%d:\n", i+1)

			switch {
			case block.Error != "":
				fmt.Fprintf(&sb, "- %s\n", block.Error)
			case block.FallbackSummary != "":
				fmt.Fprintf(&sb, "- Summary: %s\n", block.FallbackSummary)
			default:
				fmt.Fprintf(&sb, "- Status: %s\n", block.CurrentStatus)
				sb.WriteString("- Key findings: " + joinWithOverflow(block.KeyFindings, 3) + "\n")
				sb.WriteString("- Failed attempts: " + joinWithOverflow(block.FailedAttempts, 3) + "\n")
				if len(block.NextSteps) > 0 {
					fmt.Fprintf(&sb, "- Suggested next step: %s\n", block.NextSteps[0])
				}
			}
			fmt.Fprintf(&sb, "- Source: based on %d historical steps\n\n", block.SourceSteps)
		}
	}

	if len(m.history) > 0 {
		sb.WriteString("Recent detailed steps:\n")
		for _, rec := range m.history {
			fmt.Fprintf(&sb, "Step %d:\n", rec.Step)
			fmt.Fprintf(&sb, "- Purpose: %s\n", rec.Purpose)
			fmt.Fprintf(&sb, "- Command: %s\n", rec.Content)
			fmt.Fprintf(&sb, "- Output: %s\n", truncate(rec.Output, summaryOutputCap))
			fmt.Fprintf(&sb, "- Analysis: %s\n", rec.Analysis.Analysis)
			if count, ok := m.failures[rec.Content]; ok {
				fmt.Fprintf(&sb, "- Historical failure count: %d\n", count)
			}
			sb.WriteString("\n")
		}
	}

	if sb.Len() == 0 {
		return "No history"
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func joinWithOverflow(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:n], ", ") + fmt.Sprintf(" and %d more", len(items)-n)
}

func fingerprint(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:8])
}
