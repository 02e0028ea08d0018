package fingerprint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skyroute/booking-backend/internal/models"
)

var (
	// ErrMalformedOffer indicates the offer lacks a field the canonical projection needs
	ErrMalformedOffer = errors.New("malformed offer")
)

// localLayout is the aggregator's zone-less local timestamp layout
const localLayout = "2006-01-02T15:04:05"

// currencyExponents lists ISO 4217 currencies whose minor unit is not 2 digits
var currencyExponents = map[string]int{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// CanonicalSegment is the commercial identity of one flight leg
type CanonicalSegment struct {
	Carrier     string
	Origin      string
	Destination string
	Departure   string
}

// Canonical is the order-stable projection of an offer that is hashed into a fingerprint
type Canonical struct {
	TotalMinor    int64
	Currency      string
	TravelerCount int
	Segments      []CanonicalSegment
}

// Tuple returns the projection as a plain ordered value
// (total_minor, currency, traveler_count, [[carrier, origin, destination, departure], ...])
func (c Canonical) Tuple() []interface{} {
	segments := make([][]string, len(c.Segments))
	for i, s := range c.Segments {
		segments[i] = []string{s.Carrier, s.Origin, s.Destination, s.Departure}
	}
	return []interface{}{c.TotalMinor, c.Currency, c.TravelerCount, segments}
}

// Canonicalize extracts the canonical projection of an offer.
// Segments keep itinerary order; nothing is re-sorted.
func Canonicalize(offer models.Offer) (Canonical, error) {
	currency := normalizeCode(offer.Price.Currency)
	if currency == "" {
		return Canonical{}, fmt.Errorf("%w: price.currency is required", ErrMalformedOffer)
	}

	total, err := MinorUnits(string(offer.Price.Total), currency)
	if err != nil {
		return Canonical{}, fmt.Errorf("%w: price.total: %v", ErrMalformedOffer, err)
	}

	if len(offer.TravelerPricings) == 0 {
		return Canonical{}, fmt.Errorf("%w: travelerPricings is empty", ErrMalformedOffer)
	}

	var segments []CanonicalSegment
	for i, itinerary := range offer.Itineraries {
		for j, seg := range itinerary.Segments {
			departure, err := normalizeInstant(seg.Departure.At)
			if err != nil {
				return Canonical{}, fmt.Errorf("%w: itineraries[%d].segments[%d].departure.at: %v", ErrMalformedOffer, i, j, err)
			}
			cs := CanonicalSegment{
				Carrier:     normalizeCode(seg.CarrierCode),
				Origin:      normalizeCode(seg.Departure.IataCode),
				Destination: normalizeCode(seg.Arrival.IataCode),
				Departure:   departure,
			}
			if cs.Carrier == "" || cs.Origin == "" || cs.Destination == "" {
				return Canonical{}, fmt.Errorf("%w: itineraries[%d].segments[%d] is missing carrier or airport codes", ErrMalformedOffer, i, j)
			}
			segments = append(segments, cs)
		}
	}
	if len(segments) == 0 {
		return Canonical{}, fmt.Errorf("%w: offer has no segments", ErrMalformedOffer)
	}

	return Canonical{
		TotalMinor:    total,
		Currency:      currency,
		TravelerCount: len(offer.TravelerPricings),
		Segments:      segments,
	}, nil
}

// MinorUnits converts a decimal amount string into integer minor units of the currency.
// "100.5" and "100.50" are equal; fraction digits beyond the currency exponent must be zero.
func MinorUnits(amount, currency string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, errors.New("amount is empty")
	}

	exponent, ok := currencyExponents[normalizeCode(currency)]
	if !ok {
		exponent = 2
	}

	negative := false
	if amount[0] == '-' || amount[0] == '+' {
		negative = amount[0] == '-'
		amount = amount[1:]
	}

	whole, fraction, _ := strings.Cut(amount, ".")
	if whole == "" && fraction == "" {
		return 0, errors.New("amount has no digits")
	}
	if !isDigits(whole) || !isDigits(fraction) {
		return 0, fmt.Errorf("amount %q is not a plain decimal", amount)
	}

	if len(fraction) > exponent {
		extra := fraction[exponent:]
		if strings.Trim(extra, "0") != "" {
			return 0, fmt.Errorf("amount %q has more precision than %s allows", amount, currency)
		}
		fraction = fraction[:exponent]
	}
	fraction += strings.Repeat("0", exponent-len(fraction))

	digits := strings.TrimLeft(whole+fraction, "0")
	if len(digits) > 18 {
		return 0, fmt.Errorf("amount %q overflows", amount)
	}

	var value int64
	for _, r := range digits {
		value = value*10 + int64(r-'0')
	}
	if negative {
		value = -value
	}
	return value, nil
}

func normalizeInstant(at string) (string, error) {
	at = strings.TrimSpace(at)
	if at == "" {
		return "", errors.New("timestamp is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	// Local airport time without zone; seconds and fractions are optional
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, at); err == nil {
			return t.Format(localLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognised timestamp %q", at)
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
