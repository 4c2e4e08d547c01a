package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	answerSystemPrompt = "You are a helpful assistant that produces concise, factual answers. " +
		"Use the supplied context to answer the user's query. Cite relevant sections " +
		"by referencing their titles when useful. If the context is insufficient, say so."
	answerTemperature = 0.2
	answerMaxTokens   = 512

	// DefaultContextChars caps each article's content in the answer context.
	DefaultContextChars = 1000
)

// Source is one retrieved article offered to the model as context.
type Source struct {
	ID       string
	Title    string
	Intent   string
	Category string
	Score    float64
	Content  string
	Parent   string
	Children []string
	SeeAlso  []string
}

// BuildContext renders sources into the context block, truncating each article's content to
// maxChars (DefaultContextChars when <= 0).
func BuildContext(sources []Source, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}
	blocks := make([]string, 0, len(sources))
	for _, s := range sources {
		var b strings.Builder
		fmt.Fprintf(&b, "Article: %s\nID: %s\nScore: %.3f\nIntent: %s\nCategory: %s\n",
			s.Title, s.ID, s.Score, s.Intent, s.Category)
		if s.Parent != "" {
			fmt.Fprintf(&b, "Parent: %s\n", s.Parent)
		}
		if len(s.Children) > 0 {
			fmt.Fprintf(&b, "Children: %s\n", strings.Join(s.Children, ", "))
		}
		if len(s.SeeAlso) > 0 {
			fmt.Fprintf(&b, "See also: %s\n", strings.Join(s.SeeAlso, ", "))
		}
		content := s.Content
		if r := []rune(content); len(r) > maxChars {
			content = string(r[:maxChars]) + "... [truncated for context]"
		}
		fmt.Fprintf(&b, "\nContent:\n%s", content)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// GenerateAnswer asks the model to answer query from the retrieved sources.
func GenerateAnswer(ctx context.Context, c Completer, query string, sources []Source, maxChars int) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Context:\n%s\n", BuildContext(sources, maxChars))
	if len(sources) > 0 {
		prompt.WriteString("\n\nSources:\n")
		for _, s := range sources {
			title := s.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(&prompt, "- %s (%s)\n", title, s.ID)
		}
	}
	fmt.Fprintf(&prompt, "\n\nUser question: %s\n\nRespond with a helpful answer.", query)

	answer, err := c.Complete(ctx, Request{
		Prompt:       prompt.String(),
		SystemPrompt: answerSystemPrompt,
		Temperature:  answerTemperature,
		MaxTokens:    answerMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}
