package models

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is either a GuestIdentity or a CustomerIdentity
type Identity interface {
	// ContactEmail is the email bookings default to for this identity
	ContactEmail() string
	isIdentity()
}

// GuestIdentity is a customer booking without an account
type GuestIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CustomerIdentity is an authenticated customer
type CustomerIdentity struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Email      string    `json:"email"`
}

func (g GuestIdentity) ContactEmail() string    { return strings.TrimSpace(g.Email) }
func (c CustomerIdentity) ContactEmail() string { return strings.TrimSpace(c.Email) }

func (GuestIdentity) isIdentity()    {}
func (CustomerIdentity) isIdentity() {}

// RequestScope is built once per HTTP request and passed through the booking pipeline
type RequestScope struct {
	RequestID string
	SessionID string
	// Customer is nil for guests
	Customer *CustomerIdentity
}

// IsAuthenticated reports whether a customer token was presented
func (s RequestScope) IsAuthenticated() bool {
	return s.Customer != nil
}
