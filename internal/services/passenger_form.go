package services

import (
	"errors"
	"strings"

	"github.com/skyroute/booking-backend/internal/models"
)

// ErrNoTravelers is returned when an offer carries no traveler pricings
var ErrNoTravelers = errors.New("offer has no traveler pricings")

const defaultTravelerType = "ADULT"

// DerivePassengerForm returns one empty passenger shell per traveler pricing.
// The first shell is the primary passenger. The result depends only on the offer.
func DerivePassengerForm(offer models.Offer) ([]models.Passenger, error) {
	n := offer.RequiredTravelers()
	if n == 0 {
		return nil, ErrNoTravelers
	}

	shells := make([]models.Passenger, n)
	for i, pricing := range offer.TravelerPricings {
		travelerType := strings.ToUpper(strings.TrimSpace(pricing.TravelerType))
		if travelerType == "" {
			travelerType = defaultTravelerType
		}
		shells[i] = models.Passenger{
			SequenceNumber: i + 1,
			Primary:        i == 0,
			TravelerType:   travelerType,
			Documents:      []models.TravelDocument{},
		}
	}
	return shells, nil
}
