// Package memo defines the memo entity, its identity scheme and validation rules.
//
// Invariants:
// - Titles are 1-255 characters and never blank after trimming.
// - Content never exceeds MaxContentLength bytes.
// - UpdatedAt is never earlier than CreatedAt.
//
// The package performs no I/O.
package memo
