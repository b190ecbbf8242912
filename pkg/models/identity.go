package models

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// Identity is the opaque id of the authenticated user. Owned rows carry it in
// their owner column.
type Identity string

// ParseIdentity accepts any UUID rendering and returns its canonical form.
func ParseIdentity(s string) (Identity, error) {
	u, err := uuid.FromString(s)
	if err != nil {
		return "", fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return Identity(u.String()), nil
}

// NewIdentity returns a random identity.
func NewIdentity() Identity {
	return Identity(uuid.Must(uuid.NewV4()).String())
}

func (i Identity) String() string {
	return string(i)
}

func (i Identity) IsZero() bool {
	return i == ""
}
