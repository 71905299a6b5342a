package util

import (
	"regexp"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewID returns a time-ordered identifier, optionally prefixed ("pst_0192...").
func NewID(prefix string) string {
	id := uuid.Must(uuid.NewV7()).String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// ValidID reports whether value looks like an identifier we could have issued.
func ValidID(value string) bool {
	return idPattern.MatchString(value)
}
