package search

import (
	"fmt"
	"strings"

	"github.com/harun/memoranda/pkg/memo"
)

const contextTimeLayout = "2006-01-02 15:04:05"

// Context renders memos as one markdown document, in the given order. Each
// memo becomes a heading, a metadata block and its body, followed by a rule.
func Context(memos []*memo.Memo) string {
	var b strings.Builder
	for _, m := range memos {
		fmt.Fprintf(&b, "# %s\n\n**Created:** %s\n**Updated:** %s\n**Tags:** %s\n\n%s\n\n---\n\n",
			m.Title,
			m.CreatedAt.UTC().Format(contextTimeLayout),
			m.UpdatedAt.UTC().Format(contextTimeLayout),
			strings.Join(m.Tags, ", "),
			m.Content,
		)
	}
	return b.String()
}
