package utils

import (
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("héllo", 2); got != "hé..." {
		t.Errorf("multi-byte: got %s", got)
	}
}

func TestPrefix(t *testing.T) {
	if Prefix("abcdef", 3) != "abc" || Prefix("ab", 3) != "ab" || Prefix("ab", 0) != "" {
		t.Error("unexpected prefix")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Editing Palette", "editing palette"},
		{"editing_palette", "editing palette"},
		{"  Editing--Palette! ", "editing palette"},
		{"Q100", "q100"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentTokens(t *testing.T) {
	got := ContentTokens("How do I set up the Docker setup, docker?")
	want := []string{"set", "docker", "setup"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if !IsStopword("the") || IsStopword("docker") {
		t.Error("unexpected stopword classification")
	}
}
