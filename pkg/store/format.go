package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/harun/memoranda/pkg/memo"
)

const (
	delimiter        = "---\n"
	closingDelimiter = "\n---\n"
)

// encodeMemo renders the on-disk form: a JSON metadata block between
// delimiter lines followed by the raw body. The metadata repeats the body in
// its content field.
func encodeMemo(m *memo.Memo) ([]byte, error) {
	meta, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(meta) + len(m.Content) + 16)
	buf.WriteString(delimiter)
	buf.Write(meta)
	buf.WriteString(closingDelimiter)
	buf.WriteString(m.Content)
	return buf.Bytes(), nil
}

// splitMetadata separates the metadata block from the body. ok is false
// when the text does not start with a delimiter line. A missing closing
// delimiter yields the remaining text as metadata and hasBody false.
func splitMetadata(text string) (meta, body string, hasBody, ok bool) {
	if !strings.HasPrefix(text, delimiter) {
		return "", "", false, false
	}
	rest := text[len(delimiter):]

	if idx := strings.Index(rest, closingDelimiter); idx >= 0 {
		return rest[:idx], rest[idx+len(closingDelimiter):], true, true
	}
	// tolerate "---" on the last line without a trailing newline
	rest = strings.TrimSuffix(strings.TrimRight(rest, "\n"), "\n---")
	return rest, "", false, true
}

// peekID extracts only the id field of the metadata block.
func peekID(text string) (memo.ID, bool) {
	meta, _, _, ok := splitMetadata(text)
	if !ok {
		return memo.ID{}, false
	}

	var header struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(meta), &header); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(meta)
		if rerr != nil || json.Unmarshal([]byte(repaired), &header) != nil {
			return memo.ID{}, false
		}
	}

	id, err := memo.ParseID(header.ID)
	if err != nil {
		return memo.ID{}, false
	}
	return id, true
}

// decodeMemo parses a memo file. The body after the closing delimiter wins
// over the content copy in the metadata. A metadata block that is invalid
// JSON is run through jsonrepair before giving up.
func decodeMemo(text string) (m *memo.Memo, repaired bool, err error) {
	meta, body, hasBody, ok := splitMetadata(text)
	if !ok {
		return nil, false, fmt.Errorf("%w: missing metadata block", ErrMalformedMetadata)
	}

	m = &memo.Memo{}
	if err := json.Unmarshal([]byte(meta), m); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(meta)
		if rerr != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
		}
		m = &memo.Memo{}
		if err := json.Unmarshal([]byte(fixed), m); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
		}
		repaired = true
	}

	if m.ID.IsZero() {
		return nil, false, fmt.Errorf("%w: missing id", ErrMalformedMetadata)
	}
	if hasBody {
		m.Content = body
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if err := m.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	return m, repaired, nil
}

// fallbackMemo builds a memo for a file without usable metadata. Its
// identity derives from the path and modification time, so repeated
// listings agree while the file is untouched.
func fallbackMemo(path, text string, modTime time.Time) *memo.Memo {
	modTime = modTime.UTC()
	return &memo.Memo{
		ID:        memo.DeriveID(modTime, []byte(path)),
		Title:     TitleFromFilename(path),
		Content:   truncateBytes(text, memo.MaxContentLength),
		CreatedAt: modTime,
		UpdatedAt: modTime,
		Tags:      []string{},
		FilePath:  path,
	}
}
