package memo

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a 128-bit, lexicographically sortable memo identity.
// Its canonical text form is the 26 character Crockford base32 ULID encoding.
type ID struct {
	u ulid.ULID
}

// NewID generates a new time-ordered identity.
// IDs generated within the same millisecond are monotonically increasing.
func NewID() ID {
	return ID{u: ulid.Make()}
}

// DeriveID returns a deterministic identity for t and seed. The same inputs
// always produce the same ID.
func DeriveID(t time.Time, seed []byte) ID {
	sum := sha256.Sum256(seed)
	u, err := ulid.New(ulid.Timestamp(t), bytes.NewReader(sum[:]))
	if err != nil {
		// only reachable for times beyond the ULID range
		return ID{u: ulid.Make()}
	}
	return ID{u: u}
}

// ParseID parses the canonical text form of an identity.
func ParseID(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return ID{}, &ValidationError{Field: "id", Message: fmt.Sprintf("invalid memo id %q: %v", s, err)}
	}
	return ID{u: u}, nil
}

// MustParseID is like ParseID but panics on malformed input.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical 26 character encoding.
func (id ID) String() string {
	return id.u.String()
}

// IsZero reports whether the identity is unset.
func (id ID) IsZero() bool {
	return id.u == (ulid.ULID{})
}

// Time returns the generation timestamp embedded in the identity.
func (id ID) Time() time.Time {
	return ulid.Time(id.u.Time())
}

// Compare returns -1, 0 or +1 following generation order.
func (id ID) Compare(other ID) int {
	return id.u.Compare(other.u)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return id.u.MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(data []byte) error {
	parsed, err := ParseID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
