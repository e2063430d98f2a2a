// Package chat holds the text policy applied to in-room chat messages before
// the hub relays them. Chat is forwarded live and never stored.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
	MaxSenderChars  = 64   // max display label length
)

var (
	ErrEmptyMessage = errors.New("chat: message text is empty")
	ErrInvalidUTF8  = errors.New("chat: message contains invalid UTF-8")
	ErrTooLong      = errors.New("chat: message too long")
)

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrTooLong, MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrTooLong, MaxTextChars)
	}
	return nil
}

// ValidateSender checks the optional display label attached to a message.
func ValidateSender(sender string) error {
	if !utf8.ValidString(sender) {
		return ErrInvalidUTF8
	}
	if utf8.RuneCountInString(sender) > MaxSenderChars {
		return fmt.Errorf("%w: sender exceeds %d character limit", ErrTooLong, MaxSenderChars)
	}
	return nil
}
