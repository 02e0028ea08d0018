package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/pkg/validator"
)

// FieldError is a single field-level problem in a booking submission
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a submission. Nothing is sent to the
// aggregator when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

var validGenders = map[string]bool{
	"MALE":        true,
	"FEMALE":      true,
	"UNSPECIFIED": true,
}

var validDocumentTypes = map[string]bool{
	"PASSPORT":      true,
	"IDENTITY_CARD": true,
}

// ValidateSubmission checks normalized passengers, contact and guest identity against
// the offer. Sequence numbers and the primary flag come from normalizePassengers and
// are not checked here. Returns *ValidationError or nil.
func ValidateSubmission(offer *models.Offer, passengers []models.Passenger, contact models.ContactInfo, identity models.Identity, now time.Time) error {
	verr := &ValidationError{}

	required := offer.RequiredTravelers()
	if len(passengers) != required {
		verr.add("passengers", "offer requires %d passengers, got %d", required, len(passengers))
	}

	for i, p := range passengers {
		validatePassenger(verr, fmt.Sprintf("passengers[%d]", i), p, now)
	}

	if _, err := validator.ValidateEmail(contact.Email); err != nil {
		verr.add("contact.email", "%s", err.Error())
	}

	if contact.Phone != "" {
		if _, err := validator.NewPhoneValidator().Validate(contact.Phone); err != nil {
			verr.add("contact.phone", "%s", err.Error())
		}
	}

	if guest, ok := identity.(models.GuestIdentity); ok {
		if _, err := validator.ValidateEmail(guest.Email); err != nil {
			verr.add("guest_email", "%s", err.Error())
		}
		if strings.TrimSpace(contact.DisplayName) == "" {
			verr.add("contact.display_name", "display name is required for guest bookings")
		}
		switch {
		case strings.TrimSpace(contact.ConfirmationEmail) == "":
			verr.add("contact.confirmation_email", "confirmation email is required for guest bookings")
		case !validator.SameEmail(contact.ConfirmationEmail, contact.Email):
			verr.add("contact.confirmation_email", "confirmation email does not match email")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func validatePassenger(verr *ValidationError, path string, p models.Passenger, now time.Time) {
	if p.Name.First == "" {
		verr.add(path+".name.first", "first name is required")
	}
	if p.Name.Last == "" {
		verr.add(path+".name.last", "last name is required")
	}

	if p.DateOfBirth == "" {
		verr.add(path+".date_of_birth", "date of birth is required")
	} else if dob, err := validator.ParseDate(p.DateOfBirth); err != nil {
		verr.add(path+".date_of_birth", "must be a date in YYYY-MM-DD format")
	} else if dob.After(now) {
		verr.add(path+".date_of_birth", "cannot be in the future")
	}

	if !validGenders[p.Gender] {
		verr.add(path+".gender", "must be one of MALE, FEMALE, UNSPECIFIED")
	}

	if !validator.IsCountryCode(p.Nationality) {
		verr.add(path+".nationality", "must be an ISO 3166-1 alpha-2 country code")
	}

	if len(p.Documents) == 0 {
		verr.add(path+".documents", "at least one travel document is required")
	}
	for j, doc := range p.Documents {
		docPath := fmt.Sprintf("%s.documents[%d]", path, j)
		if !validDocumentTypes[doc.Type] {
			verr.add(docPath+".type", "must be PASSPORT or IDENTITY_CARD")
		}
		if !validator.IsCountryCode(doc.Nationality) {
			verr.add(docPath+".nationality", "must be an ISO 3166-1 alpha-2 country code")
		}
		if doc.ExpiryDate != "" {
			expiry, err := validator.ParseDate(doc.ExpiryDate)
			if err != nil {
				verr.add(docPath+".expiry_date", "must be a date in YYYY-MM-DD format")
			} else if expiry.Before(now) {
				verr.add(docPath+".expiry_date", "document has expired")
			}
		}
	}
}

// normalizePassengers trims free text, upper-cases codes and assigns sequence numbers
func normalizePassengers(in []models.Passenger) []models.Passenger {
	out := make([]models.Passenger, len(in))
	for i, p := range in {
		p.SequenceNumber = i + 1
		p.Primary = i == 0
		p.TravelerType = strings.ToUpper(strings.TrimSpace(p.TravelerType))
		p.Name.First = strings.TrimSpace(p.Name.First)
		p.Name.Last = strings.TrimSpace(p.Name.Last)
		p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
		p.Gender = strings.ToUpper(strings.TrimSpace(p.Gender))
		p.Nationality = strings.ToUpper(strings.TrimSpace(p.Nationality))

		docs := make([]models.TravelDocument, len(p.Documents))
		for j, d := range p.Documents {
			docs[j] = models.TravelDocument{
				Type:        strings.ToUpper(strings.TrimSpace(d.Type)),
				Number:      strings.TrimSpace(d.Number),
				Nationality: strings.ToUpper(strings.TrimSpace(d.Nationality)),
				ExpiryDate:  strings.TrimSpace(d.ExpiryDate),
			}
		}
		p.Documents = docs
		out[i] = p
	}
	return out
}
