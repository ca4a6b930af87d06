package util

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// NewID returns a time-ordered unique identifier, optionally prefixed.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

// ValidKey reports whether value is safe to embed in URL paths, storage keys
// and object names.
func ValidKey(value string) bool {
	return keyPattern.MatchString(strings.TrimSpace(value)) && strings.TrimSpace(value) == value
}
