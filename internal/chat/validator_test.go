package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"ok", "hello there", nil},
		{"empty", "", ErrEmptyMessage},
		{"whitespace", "  \n\t", ErrEmptyMessage},
		{"too many bytes", strings.Repeat("a", MaxMessageBytes+1), ErrTooLong},
		{"too many runes", strings.Repeat("é", MaxTextChars+1), ErrTooLong},
		{"max runes", strings.Repeat("é", MaxTextChars), nil},
		{"invalid utf8", "bad \xff byte", ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateSender(t *testing.T) {
	if err := ValidateSender(""); err != nil {
		t.Fatalf("empty sender should be allowed: %v", err)
	}
	if err := ValidateSender("Ann"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSender(strings.Repeat("x", MaxSenderChars+1)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}
