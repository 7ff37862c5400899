// Package search ranks memos against free-text queries.
//
// Queries support plain terms, exact phrases, tags, creation date ranges,
// raw regular expressions and single-operator boolean expressions with
// wildcard leaves. Scoring is a deterministic heuristic with a recency boost.
package search

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/harun/memoranda/pkg/memo"
)

const (
	titleTermScore     = 2.0
	contentTermScore   = 1.0
	titlePhraseScore   = 3.0
	contentPhraseScore = 1.5
	flatMatchScore     = 1.0
)

// Config tunes ranking and snippet extraction.
type Config struct {
	// RecencyWindowDays controls how fast the recency boost decays.
	RecencyWindowDays float64 `json:"recency_window_days" mapstructure:"recency_window_days"`
	// SnippetLength is the nominal snippet width in characters.
	SnippetLength int `json:"snippet_length" mapstructure:"snippet_length"`
	// SnippetContextPadding divides SnippetLength to get the context kept on
	// each side of a match.
	SnippetContextPadding int `json:"snippet_context_padding" mapstructure:"snippet_context_padding"`
}

// DefaultConfig returns the default search tuning.
func DefaultConfig() Config {
	return Config{
		RecencyWindowDays:     365,
		SnippetLength:         100,
		SnippetContextPadding: 2,
	}
}

// Result is a scored memo.
type Result struct {
	Memo     *memo.Memo `json:"memo"`
	Score    float64    `json:"score"`
	Snippets []string   `json:"snippets"`
}

// Engine scores memos against queries. It holds no memo state.
type Engine struct {
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a search engine. Zero config fields fall back to defaults.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.RecencyWindowDays <= 0 {
		cfg.RecencyWindowDays = def.RecencyWindowDays
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = def.SnippetLength
	}
	if cfg.SnippetContextPadding <= 0 {
		cfg.SnippetContextPadding = def.SnippetContextPadding
	}
	return &Engine{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// compiled holds the regular expressions of one query.
type compiled struct {
	pattern   *regexp.Regexp
	wildcards map[*Term]*regexp.Regexp
}

// Search scores every memo, drops non-matching ones and returns the rest
// ordered by score descending, then creation time descending.
func (e *Engine) Search(q Query, memos []*memo.Memo) []Result {
	c := e.compile(q)

	results := make([]Result, 0)
	for _, m := range memos {
		score, ok := e.score(m, q, c)
		if !ok {
			continue
		}
		results = append(results, Result{
			Memo:     m,
			Score:    score,
			Snippets: e.snippets(m, q),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memo.CreatedAt.After(results[j].Memo.CreatedAt)
	})
	return results
}

// Score returns the score of a single memo and whether it matched.
func (e *Engine) Score(m *memo.Memo, q Query) (float64, bool) {
	return e.score(m, q, e.compile(q))
}

func (e *Engine) compile(q Query) *compiled {
	c := &compiled{wildcards: make(map[*Term]*regexp.Regexp)}

	if q.Pattern != "" {
		re, err := regexp.Compile(q.Pattern)
		if err != nil {
			e.logger.Warn().Err(err).Str("pattern", q.Pattern).Msg("Failed to compile search pattern")
		} else {
			c.pattern = re
		}
	}

	var walk func(t *Term)
	walk = func(t *Term) {
		if t == nil {
			return
		}
		switch t.Kind {
		case WildcardTerm:
			expr := WildcardToRegexp(t.Text)
			re, err := regexp.Compile(expr)
			if err != nil {
				e.logger.Warn().Err(err).
					Str("wildcard", t.Text).
					Str("regexp", expr).
					Msg("Failed to compile wildcard pattern")
				return
			}
			c.wildcards[t] = re
		case BinaryTerm:
			walk(t.Left)
			walk(t.Right)
		}
	}
	walk(q.Boolean)

	return c
}

func (e *Engine) score(m *memo.Memo, q Query, c *compiled) (float64, bool) {
	if q.DateFrom != nil && m.CreatedAt.Before(*q.DateFrom) {
		return 0, false
	}
	if q.DateTo != nil && m.CreatedAt.After(*q.DateTo) {
		return 0, false
	}

	title := strings.ToLower(m.Title)
	content := strings.ToLower(m.Content)

	var score float64
	matched := false

	for _, term := range q.Terms {
		s, ok := matchBoth(title, content, term, titleTermScore, contentTermScore)
		score += s
		matched = matched || ok
	}

	if q.Phrase != "" {
		s, ok := matchBoth(title, content, q.Phrase, titlePhraseScore, contentPhraseScore)
		score += s
		matched = matched || ok
	}

	for _, tag := range q.Tags {
		if m.HasTag(tag) {
			score += flatMatchScore
			matched = true
		}
	}

	if c.pattern != nil && c.pattern.MatchString(m.Title+" "+m.Content) {
		score += flatMatchScore
		matched = true
	}

	if q.Boolean != nil {
		if s, ok := e.evaluate(q.Boolean, m, title, content, c); ok {
			score += s
			matched = true
		}
	}

	if !matched {
		return 0, false
	}
	return score * e.recencyBoost(m.CreatedAt), true
}

// evaluate scores a boolean term. Word and phrase leaves score the title if
// it matches, otherwise the content.
func (e *Engine) evaluate(t *Term, m *memo.Memo, title, content string, c *compiled) (float64, bool) {
	switch t.Kind {
	case WordTerm:
		return matchEither(title, content, t.Text, titleTermScore, contentTermScore)
	case PhraseTerm:
		return matchEither(title, content, t.Text, titlePhraseScore, contentPhraseScore)
	case WildcardTerm:
		re, ok := c.wildcards[t]
		if !ok || !re.MatchString(m.Title+" "+m.Content) {
			return 0, false
		}
		return flatMatchScore, true
	case BinaryTerm:
		left, lok := e.evaluate(t.Left, m, title, content, c)
		right, rok := e.evaluate(t.Right, m, title, content, c)
		switch t.Op {
		case And:
			if lok && rok {
				return left + right, true
			}
		case Or:
			if lok || rok {
				return left + right, true
			}
		case Not:
			if lok && !rok {
				return left, true
			}
		}
		return 0, false
	default:
		panic(fmt.Sprintf("search: unknown term kind %d", t.Kind))
	}
}

// recencyBoost is in (1, 2] and decays with the memo's age in whole days.
func (e *Engine) recencyBoost(created time.Time) float64 {
	days := math.Floor(e.now().Sub(created).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return 1 + 1/(1+days/e.config.RecencyWindowDays)
}

func matchBoth(title, content, term string, titleScore, contentScore float64) (float64, bool) {
	term = strings.ToLower(term)
	var score float64
	matched := false
	if strings.Contains(title, term) {
		score += titleScore
		matched = true
	}
	if strings.Contains(content, term) {
		score += contentScore
		matched = true
	}
	return score, matched
}

func matchEither(title, content, term string, titleScore, contentScore float64) (float64, bool) {
	term = strings.ToLower(term)
	switch {
	case strings.Contains(title, term):
		return titleScore, true
	case strings.Contains(content, term):
		return contentScore, true
	default:
		return 0, false
	}
}

// WildcardToRegexp translates a wildcard into a case-insensitive, unanchored
// regular expression. Letters and digits are kept, * and ? become .* and .,
// everything else is escaped.
func WildcardToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("(?i)")
	for _, r := range pattern {
		switch {
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteByte('.')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// snippets extracts one context window per matching term and phrase,
// keeping first-seen order and dropping duplicates.
func (e *Engine) snippets(m *memo.Memo, q Query) []string {
	needles := make([]string, 0, len(q.Terms)+1)
	needles = append(needles, q.Terms...)
	if q.Phrase != "" {
		needles = append(needles, q.Phrase)
	}

	out := make([]string, 0, len(needles))
	seen := make(map[string]struct{}, len(needles))
	for _, needle := range needles {
		s, ok := ExtractSnippet(m.Content, needle, e.config.SnippetLength, e.config.SnippetContextPadding)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ExtractSnippet finds the first case-insensitive occurrence of term in
// content and returns it with length/padding characters of context on each
// side, wrapped in ellipses. Offsets are counted in runes.
func ExtractSnippet(content, term string, length, padding int) (string, bool) {
	if term == "" || padding <= 0 {
		return "", false
	}

	text := []rune(content)
	pos := indexFold(text, []rune(term))
	if pos < 0 {
		return "", false
	}

	n := len([]rune(term))
	ctx := length / padding
	start := max(pos-ctx, 0)
	end := min(pos+n+ctx, len(text))

	return "..." + string(text[start:end]) + "...", true
}

func indexFold(text, term []rune) int {
	if len(term) > len(text) {
		return -1
	}
outer:
	for i := 0; i+len(term) <= len(text); i++ {
		for j, r := range term {
			if unicode.ToLower(text[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}
