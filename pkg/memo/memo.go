package memo

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MinTitleLength is the minimum title length in characters.
	MinTitleLength = 1
	// MaxTitleLength is the maximum title length in characters.
	MaxTitleLength = 255
	// MaxContentLength is the maximum content size in bytes (1 MiB).
	MaxContentLength = 1024 * 1024
)

// ValidationError reports a title or content constraint violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Memo is a titled text note with metadata.
type Memo struct {
	ID        ID        `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tags      []string  `json:"tags"`

	// FilePath is the absolute path of the backing file once persisted.
	// It is never serialized.
	FilePath string `json:"-"`
}

// New creates a memo with a fresh identity.
func New(title, content string) (*Memo, error) {
	return NewWithFilePath(title, content, "")
}

// NewWithFilePath creates a memo with a fresh identity bound to a file path.
func NewWithFilePath(title, content, filePath string) (*Memo, error) {
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Memo{
		ID:        NewID(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{},
		FilePath:  filePath,
	}, nil
}

// AddTag appends a tag unless it is already present.
func (m *Memo) AddTag(tag string) {
	for _, existing := range m.Tags {
		if existing == tag {
			return
		}
	}
	m.Tags = append(m.Tags, tag)
}

// HasTag reports whether the memo carries the exact tag.
func (m *Memo) HasTag(tag string) bool {
	for _, existing := range m.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// UpdateContent replaces the content and bumps UpdatedAt.
// The memo is left unchanged if the new content is invalid.
func (m *Memo) UpdateContent(content string) error {
	if err := ValidateContent(content); err != nil {
		return err
	}

	now := time.Now().UTC()
	if !now.After(m.UpdatedAt) {
		// Coarse clocks can return the same instant twice
		now = m.UpdatedAt.Add(time.Nanosecond)
	}

	m.Content = content
	m.UpdatedAt = now
	return nil
}

// Validate checks the title and content invariants.
func (m *Memo) Validate() error {
	if err := ValidateTitle(m.Title); err != nil {
		return err
	}
	if err := ValidateContent(m.Content); err != nil {
		return err
	}
	if m.UpdatedAt.Before(m.CreatedAt) {
		return &ValidationError{Field: "updated_at", Message: "updated_at cannot be earlier than created_at"}
	}
	return nil
}

// Clone returns a deep copy of the memo.
func (m *Memo) Clone() *Memo {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c
}

// ValidateTitle checks title length and blankness.
func ValidateTitle(title string) error {
	if title == "" {
		return &ValidationError{Field: "title", Message: "title cannot be empty"}
	}
	n := utf8.RuneCountInString(title)
	if n < MinTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("title must be at least %d characters long", MinTitleLength)}
	}
	if n > MaxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("title cannot exceed %d characters", MaxTitleLength)}
	}
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "title cannot be only whitespace"}
	}
	return nil
}

// ValidateContent checks the content size limit.
func ValidateContent(content string) error {
	if len(content) > MaxContentLength {
		return &ValidationError{Field: "content", Message: fmt.Sprintf("content cannot exceed %d bytes", MaxContentLength)}
	}
	return nil
}
