package search

import (
	"strings"
	"time"
)

// Operator joins two sides of a boolean term.
type Operator int

const (
	And Operator = iota
	Or
	Not
)

func (o Operator) String() string {
	switch o {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Not:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// TermKind identifies the node type of a boolean expression.
type TermKind int

const (
	WordTerm TermKind = iota
	PhraseTerm
	WildcardTerm
	BinaryTerm
)

// Term is a node of a boolean query expression.
// Text is set for leaves; Left, Op and Right for BinaryTerm nodes.
type Term struct {
	Kind  TermKind
	Text  string
	Left  *Term
	Op    Operator
	Right *Term
}

// Word returns a plain word leaf.
func Word(text string) *Term { return &Term{Kind: WordTerm, Text: text} }

// Phrase returns an exact phrase leaf.
func Phrase(text string) *Term { return &Term{Kind: PhraseTerm, Text: text} }

// Wildcard returns a glob-like leaf where * and ? match any sequence and any
// single character.
func Wildcard(pattern string) *Term { return &Term{Kind: WildcardTerm, Text: pattern} }

// Binary joins two terms with an operator.
func Binary(left *Term, op Operator, right *Term) *Term {
	return &Term{Kind: BinaryTerm, Left: left, Op: op, Right: right}
}

func (t *Term) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case PhraseTerm:
		return `"` + t.Text + `"`
	case BinaryTerm:
		return "(" + t.Left.String() + " " + t.Op.String() + " " + t.Right.String() + ")"
	default:
		return t.Text
	}
}

// Query describes what to look for. All populated parts contribute to the
// score; DateFrom and DateTo act as an inclusive filter.
type Query struct {
	Terms    []string
	Phrase   string
	Tags     []string
	DateFrom *time.Time
	DateTo   *time.Time
	Pattern  string
	Boolean  *Term
}

// IsEmpty reports whether the query has nothing that could match.
func (q *Query) IsEmpty() bool {
	return len(q.Terms) == 0 && q.Phrase == "" && len(q.Tags) == 0 &&
		q.Pattern == "" && q.Boolean == nil
}

// Parse turns free text into a Query.
//
// Boolean operators win over everything else: the first " AND ", then " OR ",
// then " NOT " splits the text into a binary term with leaf sides. Otherwise a
// fully quoted text is a phrase, text containing * or ? is a wildcard, and
// anything else is split on whitespace into terms.
func Parse(text string) Query {
	var q Query
	text = strings.TrimSpace(text)

	for _, op := range []struct {
		sep string
		op  Operator
	}{{" AND ", And}, {" OR ", Or}, {" NOT ", Not}} {
		if left, right, ok := strings.Cut(text, op.sep); ok {
			q.Boolean = Binary(parseLeaf(left), op.op, parseLeaf(right))
			return q
		}
	}

	switch {
	case isQuoted(text):
		q.Phrase = strings.Trim(text, `"`)
	case isWildcard(text):
		q.Boolean = Wildcard(text)
	default:
		q.Terms = strings.Fields(text)
	}
	return q
}

func parseLeaf(text string) *Term {
	text = strings.TrimSpace(text)
	switch {
	case isQuoted(text):
		return Phrase(strings.Trim(text, `"`))
	case isWildcard(text):
		return Wildcard(text)
	default:
		return Word(text)
	}
}

func isQuoted(s string) bool {
	return strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

func isWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}
