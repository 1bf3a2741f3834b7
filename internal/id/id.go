package id

import (
	"encoding/hex"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUID generates a random UUID v4.
// Returns a string in the format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
func UUID() string {
	return uuid.NewString()
}

// Sortable generates a time-ordered UUID v7.
// IDs generated later compare greater than IDs generated earlier.
func Sortable() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// Session generates a short random hex ID (16 characters).
// Suitable for URL path prefixes.
func Session() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// IsValidSession reports whether s looks like an ID produced by Session or
// a caller-chosen session name: 1 to 64 characters of [A-Za-z0-9_-].
func IsValidSession(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// Sequence hands out monotonically increasing IDs with a fixed prefix.
// The zero value is ready to use. Safe for concurrent use.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

// Next returns the next ID in the sequence.
func (s *Sequence) Next() string {
	return s.Prefix + strconv.FormatUint(s.n.Add(1), 10)
}
