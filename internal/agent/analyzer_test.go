package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestAnalyzer(t *testing.T, chat *scriptedChat, repairer Repairer) *Analyzer {
	t.Helper()
	prompts, err := LoadPrompts()
	if err != nil {
		t.Fatal(err)
	}
	return NewAnalyzer(chat, "test-model", prompts, repairer, nil)
}

func TestClassify(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{
		textReply(`{"category":"Web","solution":"Look for SQL injection in the login form."}`),
	}}
	a := newTestAnalyzer(t, chat, nil)

	c, err := a.Classify(context.Background(), "A login page at http://target/")
	if err != nil {
		t.Fatal(err)
	}
	if c.Category != "Web" {
		t.Errorf("category = %q", c.Category)
	}
	if !strings.Contains(c.Solution, "SQL injection") {
		t.Errorf("solution = %q", c.Solution)
	}
}

func TestClassifyFencedReply(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{
		textReply("```json\n{\"category\":\"Crypto\",\"solution\":\"RSA small exponent\"}\n```"),
	}}
	a := newTestAnalyzer(t, chat, nil)

	c, err := a.Classify(context.Background(), "n, e, c given")
	if err != nil {
		t.Fatal(err)
	}
	if c.Category != "Crypto" {
		t.Errorf("category = %q", c.Category)
	}
}

func TestAnalyzeStepRepairsBrokenReply(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{
		textReply(`{"analysis":"found it","success":true,}`),
	}}
	repairer := &fixedRepairer{out: `{"analysis":"found it","success":true}`}
	a := newTestAnalyzer(t, chat, repairer)

	mem := NewMemory(&scriptedChat{replies: []chatReply{textReply("{}")}}, "test-model", 100, nil)
	result, err := a.AnalyzeStep(context.Background(), mem, 1, "problem", "ls", "flag.txt", "plan")
	if err != nil {
		t.Fatal(err)
	}
	if repairer.calls != 1 {
		t.Errorf("repairer called %d times, want 1", repairer.calls)
	}
	if result.Analysis != "found it" || !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestAnalyzeStepNoRepairerFails(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{textReply("not json at all")}}
	a := newTestAnalyzer(t, chat, nil)

	mem := NewMemory(&scriptedChat{replies: []chatReply{textReply("{}")}}, "test-model", 100, nil)
	_, err := a.AnalyzeStep(context.Background(), mem, 1, "problem", "ls", "out", "plan")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}
