package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/skyroute/booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationFixture(t *testing.T) (*models.Offer, []models.Passenger, models.ContactInfo) {
	t.Helper()
	offer, err := models.ParseOffer(json.RawMessage(twoTravelerOffer))
	require.NoError(t, err)

	contact := models.ContactInfo{
		Email:             "a@example.com",
		Phone:             "+351912345678",
		DisplayName:       "A Traveler",
		ConfirmationEmail: "a@example.com",
	}
	return offer, normalizePassengers(validPassengers()), contact
}

func fieldNames(err error) []string {
	verr, ok := err.(*ValidationError)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestValidateSubmission_Valid(t *testing.T) {
	offer, passengers, contact := validationFixture(t)
	guest := models.GuestIdentity{Name: "A Traveler", Email: "a@example.com"}

	assert.NoError(t, ValidateSubmission(offer, passengers, contact, guest, time.Now()))
}

func TestValidateSubmission_Errors(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	guest := models.GuestIdentity{Name: "A Traveler", Email: "a@example.com"}

	tests := []struct {
		name      string
		mutate    func(p []models.Passenger, c *models.ContactInfo) []models.Passenger
		identity  models.Identity
		wantField string
	}{
		{
			name: "Too many passengers",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				extra := p[1]
				extra.SequenceNumber = 3
				extra.Primary = false
				return append(p, extra)
			},
			wantField: "passengers",
		},
		{
			name: "Missing first name",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[0].Name.First = ""
				return p
			},
			wantField: "passengers[0].name.first",
		},
		{
			name: "Bad date of birth",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[0].DateOfBirth = "28/02/1990"
				return p
			},
			wantField: "passengers[0].date_of_birth",
		},
		{
			name: "Unknown gender",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[1].Gender = "X"
				return p
			},
			wantField: "passengers[1].gender",
		},
		{
			name: "Bad nationality",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[1].Nationality = "PRT"
				return p
			},
			wantField: "passengers[1].nationality",
		},
		{
			name: "No documents",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[0].Documents = nil
				return p
			},
			wantField: "passengers[0].documents",
		},
		{
			name: "Unknown document type",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[0].Documents[0].Type = "VISA"
				return p
			},
			wantField: "passengers[0].documents[0].type",
		},
		{
			name: "Expired document",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				p[0].Documents[0].ExpiryDate = "2020-01-01"
				return p
			},
			wantField: "passengers[0].documents[0].expiry_date",
		},
		{
			name: "Malformed guest email",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				return p
			},
			identity:  models.GuestIdentity{Name: "A Traveler", Email: "not an email"},
			wantField: "guest_email",
		},
		{
			name: "Malformed email",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				c.Email = "not-an-email"
				c.ConfirmationEmail = "not-an-email"
				return p
			},
			wantField: "contact.email",
		},
		{
			name: "Malformed phone",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				c.Phone = "12ab"
				return p
			},
			wantField: "contact.phone",
		},
		{
			name: "Guest without display name",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				c.DisplayName = ""
				return p
			},
			wantField: "contact.display_name",
		},
		{
			name: "Guest without confirmation email",
			mutate: func(p []models.Passenger, c *models.ContactInfo) []models.Passenger {
				c.ConfirmationEmail = ""
				return p
			},
			wantField: "contact.confirmation_email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer, passengers, contact := validationFixture(t)
			passengers = tt.mutate(passengers, &contact)
			identity := tt.identity
			if identity == nil {
				identity = guest
			}

			err := ValidateSubmission(offer, passengers, contact, identity, now)
			require.Error(t, err)
			assert.Contains(t, fieldNames(err), tt.wantField)
		})
	}
}

func TestValidateSubmission_CustomerSkipsGuestFields(t *testing.T) {
	offer, passengers, contact := validationFixture(t)
	contact.DisplayName = ""
	contact.ConfirmationEmail = ""

	err := ValidateSubmission(offer, passengers, contact, models.CustomerIdentity{Email: "a@example.com"}, time.Now())
	assert.NoError(t, err)
}

func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{}
	verr.add("contact.email", "email cannot be empty")
	verr.add("passengers", "offer requires %d passengers, got %d", 2, 1)

	assert.Equal(t, "validation failed: contact.email: email cannot be empty; passengers: offer requires 2 passengers, got 1", verr.Error())
}

func TestNormalizePassengers(t *testing.T) {
	in := []models.Passenger{{
		SequenceNumber: 7,
		Primary:        false,
		Name:           models.PassengerName{First: " Ana ", Last: "Silva "},
		Gender:         "female",
		Nationality:    "pt",
		Documents:      []models.TravelDocument{{Type: "passport", Nationality: " pt"}},
	}}

	out := normalizePassengers(in)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].SequenceNumber)
	assert.True(t, out[0].Primary)
	assert.Equal(t, "Ana", out[0].Name.First)
	assert.Equal(t, "FEMALE", out[0].Gender)
	assert.Equal(t, "PT", out[0].Nationality)
	assert.Equal(t, "PASSPORT", out[0].Documents[0].Type)
	assert.Equal(t, "PT", out[0].Documents[0].Nationality)

	// input untouched
	assert.Equal(t, " Ana ", in[0].Name.First)
	assert.Equal(t, "passport", in[0].Documents[0].Type)
}
