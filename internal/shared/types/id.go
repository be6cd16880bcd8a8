package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies one triage request. The same value is used as the
// correlation ID on published pipeline events and as the JWT subject of
// authenticated callers.
type ID string

// NewID returns a fresh random request ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID validates that s is a UUID and returns it as an ID.
func ParseID(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return ID(s), nil
}

func (id ID) String() string {
	return string(id)
}
