package uuidv7

import (
	"github.com/google/uuid"
)

var newV7 = uuid.NewV7

// New returns a time-ordered UUIDv7 (RFC 9562).
func New() (uuid.UUID, error) {
	return newV7()
}

func NewString() (string, error) {
	u, err := New()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Valid reports whether s is a canonical UUIDv7 string.
func Valid(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 7 && u.Variant() == uuid.RFC4122 && u.String() == s
}
