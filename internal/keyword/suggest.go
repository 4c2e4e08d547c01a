package keyword

import (
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/manualbook/pkg/utils"
)

// Suggestion is a dictionary term close to a query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// Suggester proposes spelling corrections from the indexed vocabulary.
type Suggester struct {
	dictionary  TermDictionary
	maxDistance int
	minFreq     int

	mu    sync.RWMutex
	terms map[string]int
}

// SuggesterOption configures a Suggester.
type SuggesterOption func(*Suggester)

// WithMaxDistance sets the maximum edit distance for suggestions (default 2).
func WithMaxDistance(d int) SuggesterOption {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores terms found in fewer documents (default 1).
func WithMinFrequency(f int) SuggesterOption {
	return func(s *Suggester) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// NewSuggester creates a suggester over dict. The vocabulary is loaded lazily and reloaded by
// Refresh.
func NewSuggester(dict TermDictionary, opts ...SuggesterOption) *Suggester {
	s := &Suggester{dictionary: dict, maxDistance: 2, minFreq: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the vocabulary; call it after the index changes.
func (s *Suggester) Refresh() error {
	terms, err := s.dictionary.Terms()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.terms = terms
	s.mu.Unlock()
	return nil
}

func (s *Suggester) vocabulary() map[string]int {
	s.mu.RLock()
	terms := s.terms
	s.mu.RUnlock()
	if terms != nil {
		return terms
	}
	if err := s.Refresh(); err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terms
}

// Suggest returns known terms within the edit distance of term, best first: closer terms first,
// then more frequent, then alphabetical.
func (s *Suggester) Suggest(term string) []Suggestion {
	term = strings.ToLower(term)
	var out []Suggestion
	for dictTerm, freq := range s.vocabulary() {
		if dictTerm == term || freq < s.minFreq {
			continue
		}
		if abs(len([]rune(dictTerm))-len([]rune(term))) > s.maxDistance {
			continue
		}
		d := LevenshteinDistance(term, dictTerm)
		if d > s.maxDistance {
			continue
		}
		out = append(out, Suggestion{Term: dictTerm, Distance: d, Frequency: freq, Score: float64(freq) / float64(d+1)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Correct rewrites query with the best suggestion for every unknown term. ok is false when no
// term was changed.
func (s *Suggester) Correct(query string) (corrected string, ok bool) {
	vocab := s.vocabulary()
	terms := utils.Tokenize(query)
	for i, t := range terms {
		if _, known := vocab[t]; known {
			continue
		}
		if sugg := s.Suggest(t); len(sugg) > 0 {
			terms[i] = sugg[0].Term
			ok = true
		}
	}
	if !ok {
		return query, false
	}
	return strings.Join(terms, " "), true
}

// LevenshteinDistance returns the number of single-rune insertions, deletions or substitutions
// turning a into b.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
