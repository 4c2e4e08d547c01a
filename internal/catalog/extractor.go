package catalog

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/manualbook/internal/metadata"
	"go.uber.org/zap"
)

// MetadataLookback is how many characters (runes) before a heading are searched for its METADATA block.
// The closest block wins, unless another heading sits between it and the heading.
// This association is heuristic and sensitive to malformed input; see FuzzExtract.
const MetadataLookback = 500

var (
	headingPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	headingStartPattern = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	imagePattern        = regexp.MustCompile(`!\[.*?\]\(([^\)]+)\)`)
)

// section is one heading-delimited slice of the source document.
type section struct {
	level   int
	heading string
	content string
	// owned is true when a METADATA block belongs to the heading, even if it failed validation.
	owned   bool
	meta    *metadata.Record
	metaErr error
}

// Extractor turns a markdown document into articles.
type Extractor struct {
	logger *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorLogger sets the logger used for skipped-section warnings.
func WithExtractorLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the articles of markdown in document order. Sections with metadata create
// articles; headless sections are merged into the nearest open ancestor. source is used only
// in log output.
func (e *Extractor) Extract(markdown, source string) []*Article {
	sections := scanSections(markdown)
	if len(sections) == 0 {
		return nil
	}
	return e.group(sections, source)
}

// Extract runs a default Extractor.
func Extract(markdown, source string) []*Article {
	return NewExtractor().Extract(markdown, source)
}

func scanSections(md string) []section {
	headings := headingPattern.FindAllStringSubmatchIndex(md, -1)
	if len(headings) == 0 {
		return nil
	}
	sections := make([]section, 0, len(headings))
	for i, h := range headings {
		headingStart := h[0]
		level := h[3] - h[2]
		heading := strings.TrimSpace(md[h[4]:h[5]])

		end := len(md)
		if i+1 < len(headings) {
			end = headings[i+1][0]
		}
		// A METADATA block before the next heading belongs to that heading, so cut here.
		if loc := metadata.BlockPattern.FindStringIndex(md[headingStart:end]); loc != nil {
			end = headingStart + loc[0]
		}

		sec := section{level: level, heading: heading}
		start := headingStart
		if blockStart, body, ok := ownedBlock(md, headingStart); ok {
			sec.owned = true
			start = blockStart
			sec.meta, sec.metaErr = metadata.ParseBody(body)
		}
		sec.content = strings.TrimSpace(md[start:end])
		sections = append(sections, sec)
	}
	return sections
}

// ownedBlock finds the closest METADATA block within MetadataLookback characters before
// headingStart that is not separated from the heading by another heading.
func ownedBlock(md string, headingStart int) (start int, body string, ok bool) {
	windowStart := headingStart
	for n := 0; n < MetadataLookback && windowStart > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(md[:windowStart])
		windowStart -= size
	}
	window := md[windowStart:headingStart]
	matches := metadata.BlockPattern.FindAllStringSubmatchIndex(window, -1)
	if len(matches) == 0 {
		return 0, "", false
	}
	last := matches[len(matches)-1]
	between := window[last[1]:]
	if headingStartPattern.MatchString(between) {
		return 0, "", false
	}
	return windowStart + last[0], window[last[2]:last[3]], true
}

type frame struct {
	level   int
	article *Article
}

func (e *Extractor) group(sections []section, source string) []*Article {
	var (
		articles []*Article
		stack    []frame
		seen     = make(map[string]bool)
	)
	popTo := func(level int) {
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
	}

	for _, sec := range sections {
		if !sec.owned {
			popTo(sec.level)
			if len(stack) == 0 {
				e.logger.Warn("skipping headless section without parent",
					zap.String("source", source),
					zap.String("heading", sec.heading),
					zap.Int("level", sec.level))
				continue
			}
			parent := stack[len(stack)-1].article
			parent.Content += mergedText(sec)
			parent.Images = append(parent.Images, extractImages(sec.content)...)
			continue
		}

		popTo(sec.level)
		if sec.metaErr != nil {
			e.logger.Warn("skipping section with invalid metadata",
				zap.String("source", source),
				zap.String("heading", sec.heading),
				zap.Error(sec.metaErr))
			continue
		}
		if seen[sec.meta.ID] {
			e.logger.Warn("skipping section with duplicate article id",
				zap.String("source", source),
				zap.String("heading", sec.heading),
				zap.String("id", sec.meta.ID))
			continue
		}
		seen[sec.meta.ID] = true

		article := &Article{
			ID:           sec.meta.ID,
			Title:        sec.heading,
			Intent:       sec.meta.Intent,
			Category:     sec.meta.Category,
			Content:      sec.content,
			HeadingLevel: sec.level,
			ChildrenIDs:  []string{},
			SeeAlsoIDs:   nonNil(sec.meta.See),
			Images:       extractImages(sec.content),
			Synonyms:     nonNil(sec.meta.Synonyms),
			Codes:        nonNil(sec.meta.Codes),
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1].article
			article.ParentID = parent.ID
			parent.ChildrenIDs = append(parent.ChildrenIDs, article.ID)
		}
		articles = append(articles, article)
		stack = append(stack, frame{level: sec.level, article: article})
	}

	for _, a := range articles {
		a.WordCount, a.CharCount = countWords(a.Content)
	}
	return articles
}

// mergedText rebuilds a headless section so its heading survives inside the parent article.
func mergedText(sec section) string {
	if strings.HasPrefix(sec.content, "#") {
		return "\n\n" + sec.content
	}
	return "\n\n" + strings.Repeat("#", sec.level) + " " + sec.heading + "\n\n" + sec.content
}

func extractImages(content string) []string {
	matches := imagePattern.FindAllStringSubmatch(content, -1)
	images := make([]string, 0, len(matches))
	for _, m := range matches {
		images = append(images, m[1])
	}
	return images
}
