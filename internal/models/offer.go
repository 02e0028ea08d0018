package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// ============================================================================
// AGGREGATOR OFFER (ephemeral, never persisted)
// ============================================================================

// Amount is a decimal amount as sent by the aggregator.
// The aggregator sends strings ("123.45"); bare JSON numbers are accepted and kept verbatim.
type Amount string

// UnmarshalJSON accepts both "123.45" and 123.45
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a string or a number")
	}
	*a = Amount(n.String())
	return nil
}

// Offer is the documented subset of an aggregator flight offer.
// Unknown fields are tolerated here and preserved in CachedOffer.Raw.
type Offer struct {
	ID               string            `json:"id"`
	Source           string            `json:"source,omitempty"`
	Price            OfferPrice        `json:"price"`
	Itineraries      []Itinerary       `json:"itineraries"`
	TravelerPricings []TravelerPricing `json:"travelerPricings"`
}

// OfferPrice is the commercial price of an offer
type OfferPrice struct {
	Currency   string `json:"currency"`
	Total      Amount `json:"total"`
	GrandTotal Amount `json:"grandTotal,omitempty"`
}

// Itinerary is one direction of travel
type Itinerary struct {
	Duration string    `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

// Segment is a single flight leg
type Segment struct {
	ID          string         `json:"id,omitempty"`
	CarrierCode string         `json:"carrierCode"`
	Number      string         `json:"number,omitempty"`
	Departure   FlightEndpoint `json:"departure"`
	Arrival     FlightEndpoint `json:"arrival"`
}

// FlightEndpoint is an airport plus local timestamp
type FlightEndpoint struct {
	IataCode string `json:"iataCode"`
	Terminal string `json:"terminal,omitempty"`
	At       string `json:"at"`
}

// TravelerPricing is the per-traveler price breakdown; its count drives the passenger form
type TravelerPricing struct {
	TravelerID           string              `json:"travelerId,omitempty"`
	TravelerType         string              `json:"travelerType,omitempty"`
	FareDetailsBySegment []FareDetailSegment `json:"fareDetailsBySegment,omitempty"`
}

// FareDetailSegment carries the cabin for one segment
type FareDetailSegment struct {
	SegmentID string `json:"segmentId,omitempty"`
	Cabin     string `json:"cabin,omitempty"`
}

// RequiredTravelers returns the number of passenger records a booking for this offer needs
func (o *Offer) RequiredTravelers() int {
	return len(o.TravelerPricings)
}

// ParseOffer decodes the typed view of a raw offer payload
func ParseOffer(raw json.RawMessage) (*Offer, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("offer payload is empty")
	}
	var offer Offer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// CachedOffer is an offer held for a browsing session
type CachedOffer struct {
	SessionID   string          `json:"session_id"`
	Fingerprint string          `json:"fingerprint"`
	Raw         json.RawMessage `json:"raw"`
	Offer       Offer           `json:"-"`
	StoredAt    time.Time       `json:"stored_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// ============================================================================
// SEARCH (aggregator boundary)
// ============================================================================

// OfferSearchRequest holds the query parameters forwarded to the aggregator
type OfferSearchRequest struct {
	Origin        string `form:"origin" binding:"required,len=3"`
	Destination   string `form:"destination" binding:"required,len=3"`
	DepartureDate string `form:"departure_date" binding:"required"`
	ReturnDate    string `form:"return_date"`
	Adults        int    `form:"adults" binding:"omitempty,min=1,max=9"`
	Children      int    `form:"children" binding:"omitempty,min=0,max=9"`
	Max           int    `form:"max" binding:"omitempty,min=1,max=250"`
}

// FingerprintedOffer is a search result annotated with its fingerprint
type FingerprintedOffer struct {
	Fingerprint string          `json:"fingerprint"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Offer       json.RawMessage `json:"offer"`
}

// OfferSearchResponse is returned to the client after a search
type OfferSearchResponse struct {
	Offers       []FingerprintedOffer `json:"offers"`
	Dictionaries json.RawMessage      `json:"dictionaries,omitempty"`
	Skipped      int                  `json:"skipped"`
}

// LoadOfferResponse is returned by the booking page on load
type LoadOfferResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Offer       json.RawMessage `json:"offer"`
	StoredAt    time.Time       `json:"stored_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	TTLSeconds  int             `json:"ttl_seconds"`
}
