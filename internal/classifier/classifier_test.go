package classifier

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/manualbook/internal/llm"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		intent  string
	}{
		{"plain", `{"intent":"do"}`, false, "do"},
		{"fenced", "```json\n{\"intent\":\"learn\"}\n```", false, "learn"},
		{"surrounding text", `Sure! {"intent":"trouble"} hope that helps`, false, "trouble"},
		{"no object", "I cannot help", true, ""},
		{"broken", `{"intent": }`, true, ""},
		{"reversed braces", `} {`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJSON(tt.in)
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("err = %v, want *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got["intent"] != tt.intent {
				t.Errorf("intent = %v, want %s", got["intent"], tt.intent)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		reply string
		want  Result
	}{
		{
			name:  "model output kept, category forced unknown",
			query: "show orderbook",
			reply: `{"intent":"do","category":"application","topics":["orderbook"],"confidence":0.9}`,
			want:  Result{Intent: "do", Category: "unknown", Topics: []string{"orderbook"}, Confidence: 0.9},
		},
		{
			name:  "application keyword",
			query: "show orderbook widget",
			reply: `{"intent":"do","category":"unknown","topics":[],"confidence":0.8}`,
			want:  Result{Intent: "do", Category: "application", Topics: []string{}, Confidence: 0.8},
		},
		{
			name:  "data keyword",
			query: "explain orderbook data structure",
			reply: `{"intent":"learn","category":"unknown","topics":[],"confidence":0.7}`,
			want:  Result{Intent: "learn", Category: "data", Topics: []string{}, Confidence: 0.7},
		},
		{
			name:  "both keywords ambiguous",
			query: "widget schema",
			reply: `{"intent":"learn","category":"data","confidence":0.7}`,
			want:  Result{Intent: "learn", Category: "unknown", Topics: []string{}, Confidence: 0.7},
		},
		{
			name:  "trailing list bumps confidence",
			query: "widget list",
			reply: `{"intent":"do","confidence":0.95}`,
			want:  Result{Intent: "learn", Category: "application", Topics: []string{}, Confidence: 1.0},
		},
		{
			name:  "leading list is imperative",
			query: "list widgets",
			reply: `{"intent":"learn","confidence":0.6}`,
			want:  Result{Intent: "do", Category: "application", Topics: []string{}, Confidence: 0.6},
		},
		{
			name:  "question word with list",
			query: "show me the list of features",
			reply: `{"intent":"do","confidence":0.6}`,
			want:  Result{Intent: "learn", Category: "unknown", Topics: []string{}, Confidence: 0.6},
		},
		{
			name:  "code lookup",
			query: "Q100",
			reply: `{"intent":"do","confidence":0.6}`,
			want:  Result{Intent: "learn", Category: "unknown", Topics: []string{}, Confidence: 0.6},
		},
		{
			name:  "what is",
			query: "what is a panel",
			reply: `{"intent":"do","confidence":0.6}`,
			want:  Result{Intent: "learn", Category: "application", Topics: []string{}, Confidence: 0.6},
		},
		{
			name:  "how to",
			query: "How to fix errors",
			reply: `{"intent":"trouble","confidence":0.6}`,
			want:  Result{Intent: "do", Category: "unknown", Topics: []string{}, Confidence: 0.6},
		},
		{
			name:  "invalid fields clamped",
			query: "orderbook depth",
			reply: `{"intent":"maybe","category":"other","topics":["a","","b","c","d","e","f"],"confidence":"7"}`,
			want:  Result{Intent: "learn", Category: "unknown", Topics: []string{"a", "b", "c", "d", "e"}, Confidence: 1.0},
		},
		{
			name:  "missing confidence",
			query: "orderbook depth",
			reply: `{"intent":"trouble"}`,
			want:  Result{Intent: "trouble", Category: "unknown", Topics: []string{}, Confidence: 0.5},
		},
		{
			name:  "garbage reply",
			query: "orderbook widget",
			reply: "no idea",
			want:  Default(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&llm.MockCompleter{Response: tt.reply})
			got := c.Classify(context.Background(), tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestClassify_ServiceErrorFallsBack(t *testing.T) {
	mock := &llm.MockCompleter{Err: &llm.ServiceError{Op: "complete", Attempts: 3, Err: errors.New("down")}}
	got := New(mock).Classify(context.Background(), "how to add widget")
	if !reflect.DeepEqual(got, Default()) {
		t.Errorf("got %+v, want default", got)
	}
}

func TestClassify_EmptyQuerySkipsModel(t *testing.T) {
	mock := &llm.MockCompleter{Response: `{"intent":"do"}`}
	got := New(mock).Classify(context.Background(), "   ")
	if !reflect.DeepEqual(got, Default()) {
		t.Errorf("got %+v", got)
	}
	if len(mock.Calls()) != 0 {
		t.Error("model should not be called for an empty query")
	}
}

func TestClassify_RequestParameters(t *testing.T) {
	mock := &llm.MockCompleter{Response: `{}`}
	New(mock).Classify(context.Background(), "show orderbook")
	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0].Temperature != 0.1 || calls[0].MaxTokens != 200 || !calls[0].JSONMode {
		t.Errorf("request = %+v", calls[0])
	}
	prompt := calls[0].Prompt
	for _, want := range []string{
		`Query: "show orderbook"`,
		`CRITICAL: Use category="unknown"`,
		`"show orderbook widget" → intent=do, category=application`,
		`"explain orderbook data structure" → intent=learn, category=data`,
		`"configure workspace settings" → intent=do, category=application`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if n := strings.Count(prompt, " → intent="); n != 6 {
		t.Errorf("prompt has %d worked examples, want 6", n)
	}
}

func TestClassifyBatch(t *testing.T) {
	c := New(&llm.MockCompleter{Response: `{"intent":"trouble","confidence":0.9}`})
	got := c.ClassifyBatch(context.Background(), []string{"error in panel", ""})
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	if got[0].Intent != "trouble" || got[0].Category != "application" {
		t.Errorf("first = %+v", got[0])
	}
	if !reflect.DeepEqual(got[1], Default()) {
		t.Errorf("second = %+v", got[1])
	}
}
