package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRepairLoopsUntilValid(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{
		textReply("Sure, here is the corrected JSON: still not json"),
		textReply("nope"),
		textReply("```json\n{\"content\": \"ls\"}\n```"),
	}}
	r := NewJSONRepairer(chat, "test-model", 0, nil)

	fixed, err := r.Repair(context.Background(), `{"content": "ls",}`, errors.New("invalid character '}'"))
	if err != nil {
		t.Fatal(err)
	}
	if fixed != `{"content": "ls"}` {
		t.Errorf("fixed = %q", fixed)
	}
	if chat.calls != 3 {
		t.Errorf("chat called %d times, want 3", chat.calls)
	}
}

func TestRepairMaxAttempts(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{textReply("never valid")}}
	r := NewJSONRepairer(chat, "test-model", 3, nil)

	_, err := r.Repair(context.Background(), "{broken", errors.New("parse error"))
	if err == nil {
		t.Fatal("expected an error once the attempt cap is reached")
	}
	if chat.calls != 3 {
		t.Errorf("chat called %d times, want 3", chat.calls)
	}
}

func TestRepairHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chat := &scriptedChat{replies: []chatReply{textReply("never valid")}}
	r := NewJSONRepairer(chat, "test-model", 0, nil)

	_, err := r.Repair(ctx, "{broken", errors.New("parse error"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRepairPropagatesProviderError(t *testing.T) {
	chat := &scriptedChat{replies: []chatReply{errReply(errors.New("rate limited"))}}
	r := NewJSONRepairer(chat, "test-model", 0, nil)

	_, err := r.Repair(context.Background(), "{broken", errors.New("parse error"))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v, want wrapped provider error", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{\"a\":1}\n```  ", "{\"a\":1}"},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
