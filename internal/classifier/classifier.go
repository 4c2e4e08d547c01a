// Package classifier maps free-text queries to an intent, a category, topics and a confidence
// using a text-generation model, then applies deterministic keyword and phrasing overrides.
package classifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/hyperjump/manualbook/internal/llm"
	"github.com/hyperjump/manualbook/internal/metadata"
	"go.uber.org/zap"
)

// CategoryUnknown is the category of queries without explicit category keywords.
const CategoryUnknown = "unknown"

const (
	maxTopics         = 5
	defaultConfidence = 0.5
)

// Result is a query classification.
type Result struct {
	Intent     string   `json:"intent"`
	Category   string   `json:"category"`
	Topics     []string `json:"topics"`
	Confidence float64  `json:"confidence"`
}

// Default is returned for empty queries and whenever classification fails.
func Default() Result {
	return Result{Intent: metadata.IntentLearn, Category: CategoryUnknown, Topics: []string{}, Confidence: 0}
}

var (
	applicationKeywords = []string{"widget", "interface", "workspace", "template", "settings", "menu", "window", "panel", "toolbar"}
	dataKeywords        = []string{"data structure", "data format", "data content", "schema", "fields"}
	listQuestionWords   = []string{"what", "show me", "display", "view", "see", "where is"}
)

const promptTemplate = `You are a technical documentation query classifier.

Query: %q

Classify this query and return JSON:
{
    "intent": "do" | "learn" | "trouble",
    "category": "application" | "data" | "unknown",
    "topics": ["topic1", "topic2", ...],
    "confidence": 0.0-1.0
}

Intent rules (PRIMARY - always classify):
- "do": User wants to perform an action (show, add, create, configure, set up, remove, open, display, how to)
- "learn": User wants to understand concepts (what is, explain, definition, understand, learn about, describe)
- "trouble": User has a problem to solve (error, not working, issue, problem, fix, broken, failed, troubleshoot)

Category rules (SECONDARY - only if explicitly mentioned):
- "application": ONLY if query contains words: widget, interface, workspace, template, settings, menu, window, panel, toolbar
- "data": ONLY if query contains words: "data structure", "data format", "data content", "schema", "fields"
- "unknown": DEFAULT for all other cases

CRITICAL: Use category="unknown" unless the query literally contains the specific words listed above.

Examples:
- "show orderbook" → intent=do, category=unknown (no widget/data keywords)
- "show orderbook widget" → intent=do, category=application (contains "widget")
- "what is orderbook" → intent=learn, category=unknown (no widget/data keywords)
- "explain orderbook data structure" → intent=learn, category=data (contains "data structure")
- "add workspace" → intent=do, category=unknown ("workspace" alone is ambiguous)
- "configure workspace settings" → intent=do, category=application (contains "settings")

Topics: Extract 2-5 key terms or phrases from the query that represent the main subjects.

Confidence: 0.0-1.0 (how confident you are in the intent classification)

Return ONLY valid JSON, no other text.`

// Classifier classifies queries with a Completer.
type Classifier struct {
	completer   llm.Completer
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithTemperature overrides the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(c *Classifier) { c.temperature = t }
}

// WithMaxTokens overrides the completion budget (default 200).
func WithMaxTokens(n int) Option {
	return func(c *Classifier) { c.maxTokens = n }
}

// New creates a classifier.
func New(completer llm.Completer, opts ...Option) *Classifier {
	c := &Classifier{
		completer:   completer,
		temperature: 0.1,
		maxTokens:   200,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify never fails: model or decoding errors yield Default().
func (c *Classifier) Classify(ctx context.Context, query string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Default()
	}

	reply, err := c.completer.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(promptTemplate, query),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		c.logger.Warn("classification failed, using default", zap.String("query", query), zap.Error(err))
		return Default()
	}
	raw, err := DecodeJSON(reply)
	if err != nil {
		c.logger.Warn("unparseable classification, using default", zap.String("query", query), zap.Error(err))
		return Default()
	}

	res := validate(raw)
	applyIntentPatterns(query, &res)
	applyCategoryRules(query, &res)
	c.logger.Debug("classified query",
		zap.String("query", query),
		zap.String("intent", res.Intent),
		zap.String("category", res.Category),
		zap.Float64("confidence", res.Confidence))
	return res
}

// ClassifyBatch classifies each query in order.
func (c *Classifier) ClassifyBatch(ctx context.Context, queries []string) []Result {
	out := make([]Result, 0, len(queries))
	for _, q := range queries {
		out = append(out, c.Classify(ctx, q))
	}
	return out
}

func validate(raw map[string]any) Result {
	res := Result{Intent: metadata.IntentLearn, Category: CategoryUnknown, Topics: []string{}, Confidence: defaultConfidence}

	if intent, ok := raw["intent"].(string); ok && metadata.ValidIntent(intent) {
		res.Intent = intent
	}
	if category, ok := raw["category"].(string); ok && (metadata.ValidCategory(category) || category == CategoryUnknown) {
		res.Category = category
	}
	if topics, ok := raw["topics"].([]any); ok {
		for _, t := range topics {
			if len(res.Topics) == maxTopics {
				break
			}
			s := strings.TrimSpace(topicString(t))
			if s != "" {
				res.Topics = append(res.Topics, s)
			}
		}
	}
	if conf, ok := confidence(raw["confidence"]); ok {
		res.Confidence = clamp01(conf)
	}
	return res
}

func topicString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func confidence(v any) (float64, bool) {
	switch c := v.(type) {
	case float64:
		return c, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// applyIntentPatterns applies the phrasing rules in order; later rules overwrite earlier ones.
func applyIntentPatterns(query string, res *Result) {
	q := strings.ToLower(strings.TrimSpace(query))

	if strings.HasSuffix(q, " list") || q == "list" {
		res.Intent = metadata.IntentLearn
		res.Confidence = clamp01(res.Confidence + 0.1)
	} else if strings.HasPrefix(q, "list ") {
		res.Intent = metadata.IntentDo
	}

	if strings.Contains(q, "list") {
		for _, w := range listQuestionWords {
			if strings.Contains(q, w) {
				res.Intent = metadata.IntentLearn
				break
			}
		}
	}

	if len(strings.Fields(q)) == 1 && looksLikeCode(query) {
		res.Intent = metadata.IntentLearn
	}

	for _, p := range []string{"what are", "what is", "what's"} {
		if strings.HasPrefix(q, p) {
			res.Intent = metadata.IntentLearn
		}
	}
	for _, p := range []string{"how to", "how do i", "how can i"} {
		if strings.HasPrefix(q, p) {
			res.Intent = metadata.IntentDo
		}
	}
}

func looksLikeCode(s string) bool {
	var digit, upper bool
	for _, r := range s {
		digit = digit || unicode.IsDigit(r)
		upper = upper || unicode.IsUpper(r)
	}
	return digit && upper
}

// applyCategoryRules keeps a category only when the query names it explicitly.
func applyCategoryRules(query string, res *Result) {
	q := strings.ToLower(query)
	hasApp := containsAny(q, applicationKeywords)
	hasData := containsAny(q, dataKeywords)
	switch {
	case hasApp && !hasData:
		res.Category = metadata.CategoryApplication
	case hasData && !hasApp:
		res.Category = metadata.CategoryData
	default:
		res.Category = CategoryUnknown
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
