package search

import (
	"strings"
	"unicode"

	"github.com/harun/memoranda/pkg/memo"
)

// Index maps lowercased tokens to the memos containing them.
//
// It is advisory: scoring always re-reads title and content, so an index that
// over- or under-includes only affects how many memos get scored. Index is not
// safe for concurrent use; the owner guards it.
type Index struct {
	tokens map[string][]memo.ID
	memos  int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{tokens: make(map[string][]memo.ID)}
}

// Add indexes every token of the memo's title and content.
func (ix *Index) Add(m *memo.Memo) {
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(m.Title + " " + m.Content) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		ix.tokens[tok] = append(ix.tokens[tok], m.ID)
	}
	ix.memos++
}

// Rebuild replaces the index contents with the given memos.
func (ix *Index) Rebuild(memos []*memo.Memo) {
	ix.Reset()
	for _, m := range memos {
		ix.Add(m)
	}
}

// Reset clears the index.
func (ix *Index) Reset() {
	ix.tokens = make(map[string][]memo.ID)
	ix.memos = 0
}

// Candidates returns the memos containing token.
func (ix *Index) Candidates(token string) []memo.ID {
	ids := ix.tokens[strings.ToLower(token)]
	return append([]memo.ID(nil), ids...)
}

// MayMatch reports whether any term could match a memo in the index.
// Queries that are not plain terms always may match.
func (ix *Index) MayMatch(q Query) bool {
	if len(q.Terms) == 0 || q.Phrase != "" || len(q.Tags) > 0 || q.Pattern != "" || q.Boolean != nil {
		return true
	}
	for _, term := range q.Terms {
		toks := Tokenize(term)
		if len(toks) == 0 {
			return true
		}
		for _, tok := range toks {
			// substring matching means a token prefix may still hit
			for indexed := range ix.tokens {
				if strings.Contains(indexed, tok) {
					return true
				}
			}
		}
	}
	return false
}

// Size returns the number of distinct tokens.
func (ix *Index) Size() int { return len(ix.tokens) }

// Memos returns how many memos were indexed.
func (ix *Index) Memos() int { return ix.memos }

// Tokenize splits text on whitespace, trims non-alphanumeric edges and
// lowercases the result.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(tok))
	}
	return tokens
}
