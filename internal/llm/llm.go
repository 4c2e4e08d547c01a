// Package llm provides the text-generation collaborator: an OpenAI-compatible chat client,
// retry with exponential backoff and answer synthesis over retrieved articles.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("empty completion response")

// Request is one completion call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	// JSONMode asks the backend for a strict JSON object when it supports it.
	JSONMode bool
}

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ServiceError reports a failed call to the generation backend after retries.
type ServiceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
