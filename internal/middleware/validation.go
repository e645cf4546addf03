package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxPromptLength bounds generation and change-request prompts.
const maxPromptLength = 20000

var fragmentIDPattern = regexp.MustCompile(`^slide-(\d+|title|thankyou)$`)

// ValidatePrompt validates a generation prompt.
func ValidatePrompt(prompt string) error {
	if len(prompt) == 0 {
		return errors.New("prompt cannot be empty")
	}
	if len(prompt) > maxPromptLength {
		return errors.New("prompt exceeds maximum length")
	}
	if !utf8.ValidString(prompt) {
		return errors.New("prompt must be valid UTF-8")
	}
	return nil
}

// ValidateChangeRequest validates an edit request description.
func ValidateChangeRequest(changeRequest string) error {
	if len(changeRequest) == 0 {
		return errors.New("changeRequest cannot be empty")
	}
	if len(changeRequest) > maxPromptLength {
		return errors.New("changeRequest exceeds maximum length")
	}
	if !utf8.ValidString(changeRequest) {
		return errors.New("changeRequest must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateFragmentID validates a slide fragment ID.
func ValidateFragmentID(id string) error {
	if !fragmentIDPattern.MatchString(id) {
		return errors.New("invalid fragment ID format")
	}
	return nil
}
