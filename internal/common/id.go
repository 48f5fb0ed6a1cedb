package common

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// validDocumentID restricts document ids to ASCII letters, digits,
// underscore and hyphen.
var validDocumentID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NewAutoDocumentID generates a document id for the auto-generation path,
// used when no primary key value can be resolved and autogeneration is
// enabled. No synthetic prefix is added: primary key values are compared
// byte-for-byte against caller-visible ids, so a prefix would leak an
// engine convention into the user id space.
func NewAutoDocumentID() string {
	return uuid.New().String()
}

// ValidateDocumentID trims and validates a raw document id string,
// returning the trimmed form.
func ValidateDocumentID(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if !validDocumentID.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}
