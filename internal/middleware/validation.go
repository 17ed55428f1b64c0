package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const maxIDLength = 128

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a chat session id.
func ValidateSessionID(id string) error {
	return validateID("session", id)
}

// ValidateMessageID validates a message id.
func ValidateMessageID(id string) error {
	return validateID("message", id)
}

// ValidateNotificationID validates a notification id.
func ValidateNotificationID(id string) error {
	return validateID("notification", id)
}

// ValidatePropertyID validates a property listing id.
func ValidatePropertyID(id string) error {
	return validateID("property", id)
}

// Backend ids are opaque; only shape is checked.
func validateID(kind, id string) error {
	if id == "" {
		return errors.New(kind + " ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New(kind + " ID exceeds maximum length")
	}
	if !utf8.ValidString(id) || strings.ContainsAny(id, "/?# \t\n") {
		return errors.New("invalid " + kind + " ID format")
	}
	return nil
}
