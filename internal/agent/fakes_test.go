package agent

import (
	"context"
	"errors"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/provider"
)

// scriptedChat replays queued replies in order. Once the queue is exhausted
// the last reply repeats, which keeps retry loops deterministic.
type scriptedChat struct {
	replies []chatReply
	calls   int
}

type chatReply struct {
	resp *provider.ChatResponse
	err  error
}

func (s *scriptedChat) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(s.replies) == 0 {
		return nil, errors.New("scriptedChat: no replies queued")
	}
	i := s.calls
	s.calls++
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	r := s.replies[i]
	return r.resp, r.err
}

func (s *scriptedChat) DefaultModel() string { return "test-model" }

func textReply(content string) chatReply {
	return chatReply{resp: &provider.ChatResponse{Content: content}}
}

func toolReply(name string, args map[string]any) chatReply {
	return chatReply{resp: &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
	}}
}

func errReply(err error) chatReply {
	return chatReply{err: err}
}

// fixedRepairer returns a canned repair result.
type fixedRepairer struct {
	out   string
	err   error
	calls int
}

func (f *fixedRepairer) Repair(ctx context.Context, malformed string, parseErr error) (string, error) {
	f.calls++
	return f.out, f.err
}

// recorderSpy captures transcript callbacks.
type recorderSpy struct {
	problem  string
	category string
	steps    []StepRecord
	flags    []flagEvent
}

type flagEvent struct {
	step      int
	candidate string
	confirmed bool
}

func (r *recorderSpy) BeginRun(problem, category string) {
	r.problem = problem
	r.category = category
}

func (r *recorderSpy) RecordStep(rec StepRecord) { r.steps = append(r.steps, rec) }

func (r *recorderSpy) RecordFlag(step int, candidate string, confirmed bool) {
	r.flags = append(r.flags, flagEvent{step: step, candidate: candidate, confirmed: confirmed})
}

// confirmerFunc adapts a function to FlagConfirmer.
type confirmerFunc func(candidate string) bool

func (f confirmerFunc) Confirm(candidate string) bool { return f(candidate) }

// approverScript replays queued approval decisions.
type approverScript struct {
	decisions []Decision
	feedback  []string
	calls     int
	seen      []*Action
}

func (a *approverScript) Review(action *Action) (Decision, string) {
	a.seen = append(a.seen, action)
	i := a.calls
	a.calls++
	if i >= len(a.decisions) {
		i = len(a.decisions) - 1
	}
	fb := ""
	if i < len(a.feedback) {
		fb = a.feedback[i]
	}
	return a.decisions[i], fb
}
