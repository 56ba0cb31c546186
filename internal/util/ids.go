package util

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a 21 character nanoid used for characters and relationships.
func NewID() (string, error) {
	return gonanoid.New()
}

// NewRunID returns a fresh identifier for one book-processing run.
func NewRunID() string {
	return uuid.NewString()
}

// IsRunID reports whether s parses as a run identifier.
func IsRunID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
