package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the status of a persisted booking
// Matches PostgreSQL CHECK constraint on bookings.status
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// SubmissionState is the state of a dedup key claim (booking_submissions table)
type SubmissionState string

const (
	SubmissionInFlight  SubmissionState = "in_flight"  // aggregator call running
	SubmissionAmbiguous SubmissionState = "ambiguous"  // outcome unknown, needs support
)

// ============================================================================
// PASSENGERS & CONTACT
// ============================================================================

// PassengerName holds a traveler's name as printed on the travel document
type PassengerName struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// TravelDocument is a passport or national ID
type TravelDocument struct {
	Type        string `json:"type"`
	Number      string `json:"number,omitempty"`
	Nationality string `json:"nationality"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
}

// Passenger is one traveler record; shells come from the passenger form deriver
type Passenger struct {
	SequenceNumber int              `json:"sequence_number"`
	Primary        bool             `json:"primary"`
	TravelerType   string           `json:"traveler_type,omitempty"`
	Name           PassengerName    `json:"name"`
	DateOfBirth    string           `json:"date_of_birth"`
	Gender         string           `json:"gender"`
	Nationality    string           `json:"nationality"`
	Documents      []TravelDocument `json:"documents"`
}

// ContactInfo is the booking contact; guests also provide a display name and confirmation email
type ContactInfo struct {
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
	ConfirmationEmail string `json:"confirmation_email,omitempty"`
}

// Passengers is the JSONB column type for bookings.passengers
type Passengers []Passenger

func (p Passengers) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Passengers) Scan(value interface{}) error {
	if value == nil {
		*p = Passengers{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, isString := value.(string)
		if !isString {
			return errors.New("type assertion to []byte failed for Passengers")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, p)
}

func (c ContactInfo) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ContactInfo) Scan(value interface{}) error {
	if value == nil {
		*c = ContactInfo{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, isString := value.(string)
		if !isString {
			return errors.New("type assertion to []byte failed for ContactInfo")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// Booking is the durable record of a confirmed aggregator booking.
// Never mutated except for the confirmed -> cancelled transition.
type Booking struct {
	ID                  uuid.UUID     `json:"id" db:"id"`
	BookingReference    string        `json:"booking_reference" db:"booking_reference"`
	PNR                 *string       `json:"pnr,omitempty" db:"pnr"`
	AggregatorReference *string       `json:"aggregator_reference,omitempty" db:"aggregator_reference"`
	OfferFingerprint    string        `json:"offer_fingerprint" db:"offer_fingerprint"`
	DedupKey            string        `json:"-" db:"dedup_key"`
	CustomerID          *uuid.UUID    `json:"customer_id,omitempty" db:"customer_id"`
	GuestName           *string       `json:"guest_name,omitempty" db:"guest_name"`
	GuestEmail          *string       `json:"guest_email,omitempty" db:"guest_email"`
	Passengers          Passengers    `json:"passengers" db:"passengers"`
	Contact             ContactInfo   `json:"contact" db:"contact"`
	TotalAmount         string        `json:"total_amount" db:"total_amount"`
	Currency            string        `json:"currency" db:"currency"`
	Status              BookingStatus `json:"status" db:"status"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// IsGuest reports whether the booking was made without a customer account
func (b *Booking) IsGuest() bool {
	return b.CustomerID == nil
}

// CanCancel checks if the booking may move to cancelled
func (b *Booking) CanCancel() bool {
	return b.Status == BookingStatusConfirmed
}

// BookingSubmission is a claim on a dedup key while the aggregator call is running
type BookingSubmission struct {
	DedupKey         string          `db:"dedup_key"`
	OfferFingerprint string          `db:"offer_fingerprint"`
	State            SubmissionState `db:"state"`
	LastError        *string         `db:"last_error"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// SubmitBookingRequest is the booking page form submission
type SubmitBookingRequest struct {
	Fingerprint string      `json:"fingerprint" binding:"required"`
	Passengers  []Passenger `json:"passengers" binding:"required"`
	Contact     ContactInfo `json:"contact"`
	GuestName   string      `json:"guest_name,omitempty"`
	GuestEmail  string      `json:"guest_email,omitempty"`
}

// BookingResponse is the public view of a booking
type BookingResponse struct {
	BookingReference string        `json:"booking_reference"`
	PNR              *string       `json:"pnr,omitempty"`
	OfferFingerprint string        `json:"offer_fingerprint"`
	Status           BookingStatus `json:"status"`
	TotalAmount      string        `json:"total_amount"`
	Currency         string        `json:"currency"`
	Passengers       []Passenger   `json:"passengers"`
	Contact          ContactInfo   `json:"contact"`
	Guest            bool          `json:"guest"`
	CreatedAt        time.Time     `json:"created_at"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
}

// SubmitBookingResponse is returned after a submission; duplicates are successes
type SubmitBookingResponse struct {
	Duplicate bool            `json:"duplicate"`
	Booking   BookingResponse `json:"booking"`
}

// ToResponse builds the public view
func (b *Booking) ToResponse() BookingResponse {
	passengers := []Passenger(b.Passengers)
	if passengers == nil {
		passengers = []Passenger{}
	}
	return BookingResponse{
		BookingReference: b.BookingReference,
		PNR:              b.PNR,
		OfferFingerprint: b.OfferFingerprint,
		Status:           b.Status,
		TotalAmount:      b.TotalAmount,
		Currency:         b.Currency,
		Passengers:       passengers,
		Contact:          b.Contact,
		Guest:            b.IsGuest(),
		CreatedAt:        b.CreatedAt,
		CancelledAt:      b.CancelledAt,
	}
}
