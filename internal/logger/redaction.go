package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials that end up in log lines, for example in memo
// titles recorded by the audit log.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// API keys
			regexp.MustCompile(`sk-(?:ant-)?[a-zA-Z0-9_-]{20,}`),
			// GitHub tokens
			regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`),
			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			// AWS keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			// key=value style secrets
			regexp.MustCompile(`(?i)(?:password|passwd|pwd|secret)["\s:=]+[^\s"]+`),
			regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9._-]{20,}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s.
func (r *Redactor) Redact(s string) string {
	return string(r.redactBytes([]byte(s)))
}

func (r *Redactor) redactBytes(p []byte) []byte {
	for _, pattern := range r.patterns {
		p = pattern.ReplaceAll(p, []byte(redacted))
	}
	return p
}

// Wrap returns a writer that redacts each write before passing it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success; the redacted payload may differ in size.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write(w.redactor.redactBytes(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
