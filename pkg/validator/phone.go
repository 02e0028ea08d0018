package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and an optional leading +")

	// ErrInvalidLength indicates phone number has fewer than 7 or more than 15 digits (E.164)
	ErrInvalidLength = errors.New("phone number must have between 7 and 15 digits")

	// ErrMissingCountryCode indicates the number is not in international format
	ErrMissingCountryCode = errors.New("phone number must include the country code, e.g. +34 600 000 000")
)

// phoneRegex matches an international number after separators are removed
var phoneRegex = regexp.MustCompile(`^\+?\d+$`)

// PhoneValidator handles contact phone validation for aggregator bookings
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates an international phone number
// Accepts format: +34600000000 or +34 600 000 000 or 0034-600-000-000
// Returns the number in E.164 form (+ followed by digits)
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if !strings.HasPrefix(sanitized, "+") {
		return "", ErrMissingCountryCode
	}

	digits := sanitized[1:]
	if len(digits) < 7 || len(digits) > 15 {
		return "", ErrInvalidLength
	}
	if digits[0] == '0' {
		return "", ErrMissingCountryCode
	}

	return sanitized, nil
}

// Sanitize removes separators and rewrites the 00 international prefix as +
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.ReplaceAll(phone, "(", "")
	phone = strings.ReplaceAll(phone, ")", "")
	phone = strings.ReplaceAll(phone, ".", "")

	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}

	return phone
}

// CountryCallingCode splits the aggregator contact phone into calling code and national number.
// Calling codes are 1 to 3 digits; the split uses the known one- and two-digit codes.
func (v *PhoneValidator) CountryCallingCode(phone string) (string, string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", "", err
	}
	digits := sanitized[1:]

	if digits[0] == '1' || digits[0] == '7' {
		return digits[:1], digits[1:], nil
	}
	if _, ok := twoDigitCallingCodes[digits[:2]]; ok {
		return digits[:2], digits[2:], nil
	}
	return digits[:3], digits[3:], nil
}

// twoDigitCallingCodes lists ITU calling codes of length two
var twoDigitCallingCodes = map[string]struct{}{
	"20": {}, "27": {}, "30": {}, "31": {}, "32": {}, "33": {}, "34": {}, "36": {}, "39": {},
	"40": {}, "41": {}, "43": {}, "44": {}, "45": {}, "46": {}, "47": {}, "48": {}, "49": {},
	"51": {}, "52": {}, "53": {}, "54": {}, "55": {}, "56": {}, "57": {}, "58": {},
	"60": {}, "61": {}, "62": {}, "63": {}, "64": {}, "65": {}, "66": {},
	"81": {}, "82": {}, "84": {}, "86": {}, "90": {}, "91": {}, "92": {}, "93": {}, "94": {}, "95": {}, "98": {},
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
