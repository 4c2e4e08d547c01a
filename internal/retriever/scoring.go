package retriever

import (
	"strings"
	"unicode"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/pkg/utils"
	"go.uber.org/zap"
)

// Tuning holds the hand-tuned scoring constants. They are not derived from anything; adjust
// them per corpus.
type Tuning struct {
	TitleExactBoost     float64
	IDExactBoost        float64
	TitleWordsBoost     float64
	FallbackWeight      float64
	FallbackThreshold   float64
	RelevanceThreshold  float64
	HighScoreRelevant   float64
	IDTokenScore        float64
	TitleWeight         float64
	ContentWeight       float64
	ContentPrefix       int
	CandidateMultiplier int
	MaxExpansionTerms   int
	MaxExtraTitleWords  int
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		TitleExactBoost:     0.25,
		IDExactBoost:        0.20,
		TitleWordsBoost:     0.15,
		FallbackWeight:      0.8,
		FallbackThreshold:   0.70,
		RelevanceThreshold:  0.2,
		HighScoreRelevant:   0.70,
		IDTokenScore:        0.50,
		TitleWeight:         0.6,
		ContentWeight:       0.4,
		ContentPrefix:       500,
		CandidateMultiplier: 3,
		MaxExpansionTerms:   3,
		MaxExtraTitleWords:  3,
	}
}

// DefaultDomainTerms is the technical vocabulary that must appear in an article for it to be
// relevant to a query naming it. Matching is case-insensitive.
var DefaultDomainTerms = []string{
	"docker", "kubernetes", "k8s", "api", "sql", "python", "javascript", "java",
	"aws", "azure", "gcp", "git", "linux", "windows", "macos", "nginx",
	"redis", "postgres", "mysql", "mongodb", "react", "node", "npm", "json",
	"xml", "yaml", "http", "https", "ssl", "tls", "oauth", "jwt",
}

// expand appends up to MaxExpansionTerms synonyms or codes of the first matching catalog entry
// that the query does not already contain.
func (r *Retriever) expand(query string, entries []*catalog.Entry) string {
	normQuery := utils.Normalize(query)
	if normQuery == "" {
		return query
	}
	queryWords := utils.TokenSet(query)
	lowerQuery := strings.ToLower(query)

	for _, e := range entries {
		if !r.expansionMatch(normQuery, strings.TrimSpace(query), queryWords, e) {
			continue
		}
		var terms []string
		for _, t := range append(append([]string(nil), e.Synonyms...), e.Codes...) {
			if len(terms) == r.tuning.MaxExpansionTerms {
				break
			}
			if t == "" || strings.Contains(lowerQuery, strings.ToLower(t)) {
				continue
			}
			terms = append(terms, t)
		}
		if len(terms) == 0 {
			return query
		}
		r.logger.Debug("expanded query", zap.String("query", query), zap.String("article", e.ID), zap.Strings("terms", terms))
		return query + " " + strings.Join(terms, " ")
	}
	return query
}

func (r *Retriever) expansionMatch(normQuery, rawQuery string, queryWords map[string]bool, e *catalog.Entry) bool {
	if utils.Normalize(e.ID) == normQuery {
		return true
	}
	titleWords := utils.TokenSet(e.Title)
	if len(titleWords)-len(queryWords) <= r.tuning.MaxExtraTitleWords && containsAll(titleWords, queryWords) {
		return true
	}
	for _, code := range e.Codes {
		if strings.EqualFold(code, rawQuery) {
			return true
		}
	}
	return false
}

// boost applies the first matching title/id rule and clamps to 1.
func (r *Retriever) boost(query string, a *catalog.Article, score float64) float64 {
	normQuery := utils.Normalize(query)
	if normQuery == "" {
		return score
	}
	switch {
	case utils.Normalize(a.Title) == normQuery:
		score += r.tuning.TitleExactBoost
	case utils.Normalize(a.ID) == normQuery:
		score += r.tuning.IDExactBoost
	case allSubstrings(strings.ToLower(a.Title), utils.Tokenize(query)):
		score += r.tuning.TitleWordsBoost
	}
	return utils.Clamp01(score)
}

// gate sets RelevanceScore and IsRelevant from lexical overlap, score and domain terms.
func (r *Retriever) gate(query string, res *Result) {
	a := res.Article
	tokens := utils.ContentTokens(query)
	titleOverlap := overlap(tokens, utils.TokenSet(a.Title))
	contentOverlap := overlap(tokens, utils.TokenSet(utils.Prefix(a.Content, r.tuning.ContentPrefix)))
	res.RelevanceScore = r.tuning.TitleWeight*titleOverlap + r.tuning.ContentWeight*contentOverlap

	idTokenHit := false
	lowerID := strings.ToLower(a.ID)
	for _, t := range tokens {
		if strings.Contains(lowerID, t) {
			idTokenHit = true
			break
		}
	}
	res.IsRelevant = res.RelevanceScore >= r.tuning.RelevanceThreshold ||
		res.Score >= r.tuning.HighScoreRelevant ||
		(idTokenHit && res.Score >= r.tuning.IDTokenScore)

	if !res.IsRelevant {
		return
	}
	lowerContent := strings.ToLower(a.Content)
	for _, term := range r.domainTermsIn(query) {
		found := strings.Contains(a.Content, term.text)
		if !term.verbatim {
			found = strings.Contains(lowerContent, term.text)
		}
		if !found {
			res.IsRelevant = false
			return
		}
	}
}

type domainTerm struct {
	text     string
	verbatim bool
}

// domainTermsIn returns the technical terms of query. Capitalized tokens must appear in an
// article exactly as written; listed vocabulary matches case-insensitively.
func (r *Retriever) domainTermsIn(query string) []domainTerm {
	var terms []domainTerm
	seen := make(map[string]bool)
	for _, word := range strings.Fields(query) {
		word = strings.TrimFunc(word, func(c rune) bool { return !unicode.IsLetter(c) && !unicode.IsDigit(c) })
		if word == "" {
			continue
		}
		var term domainTerm
		switch lower := strings.ToLower(word); {
		case unicode.IsUpper([]rune(word)[0]):
			term = domainTerm{text: word, verbatim: true}
		case r.domainTerms[lower]:
			term = domainTerm{text: lower}
		default:
			continue
		}
		if !seen[term.text] {
			seen[term.text] = true
			terms = append(terms, term)
		}
	}
	return terms
}

func overlap(tokens []string, set map[string]bool) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range tokens {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func containsAll(set, sub map[string]bool) bool {
	for w := range sub {
		if !set[w] {
			return false
		}
	}
	return true
}

func allSubstrings(s string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
