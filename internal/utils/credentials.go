package utils

import (
	"regexp"
	"strings"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 16
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an address before it is used as a
// lookup key or JWT subject.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateNewPassword checks length bounds and that confirm matches.
func ValidateNewPassword(password, confirm string) error {
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return ErrInvalidPassword
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
