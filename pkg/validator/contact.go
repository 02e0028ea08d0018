package validator

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrEmptyEmail indicates email is empty
	ErrEmptyEmail = errors.New("email cannot be empty")

	// ErrInvalidEmail indicates email is not a bare address
	ErrInvalidEmail = errors.New("email must be a valid address, e.g. name@example.com")
)

// domainRegex requires at least one dot in the domain and a 2+ letter TLD
var domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

var countryRegex = regexp.MustCompile(`^[A-Z]{2}$`)

// ValidateEmail checks an email is a bare, well-formed address (no display name)
// and returns it trimmed
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmptyEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || !domainRegex.MatchString(email[at+1:]) {
		return "", ErrInvalidEmail
	}

	return email, nil
}

// SameEmail compares two addresses ignoring case and surrounding whitespace
func SameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsCountryCode reports whether s is an upper-case ISO 3166-1 alpha-2 code
func IsCountryCode(s string) bool {
	return countryRegex.MatchString(s)
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}
