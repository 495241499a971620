package message

import "github.com/google/uuid"

// NewID returns a fresh opaque message identifier. Centralized here so every
// envelope constructor produces IDs the same way.
func NewID() string {
	return uuid.NewString()
}
