package fingerprint

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/skyroute/booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseOffer = `{
	"type": "flight-offer",
	"id": "1",
	"source": "GDS",
	"price": {"currency": "EUR", "total": "355.34", "base": "255.00"},
	"itineraries": [
		{"duration": "PT14H15M", "segments": [
			{"id": "1", "carrierCode": "TP", "number": "1234",
			 "departure": {"iataCode": "SYD", "terminal": "1", "at": "2026-11-01T11:35:00"},
			 "arrival": {"iataCode": "LIS", "at": "2026-11-01T16:50:00"}},
			{"id": "2", "carrierCode": "TP", "number": "200",
			 "departure": {"iataCode": "LIS", "at": "2026-11-01T19:00:00"},
			 "arrival": {"iataCode": "MAD", "at": "2026-11-01T21:15:00"}}
		]}
	],
	"travelerPricings": [
		{"travelerId": "1", "travelerType": "ADULT", "fareDetailsBySegment": [{"segmentId": "1", "cabin": "ECONOMY"}]},
		{"travelerId": "2", "travelerType": "ADULT", "fareDetailsBySegment": [{"segmentId": "1", "cabin": "ECONOMY"}]}
	]
}`

// Same commercial content: keys reordered, different id, extra metadata, price written differently
const reorderedOffer = `{
	"travelerPricings": [
		{"fareDetailsBySegment": [{"cabin": "ECONOMY", "segmentId": "9"}], "travelerType": "ADULT", "travelerId": "a"},
		{"travelerType": "ADULT", "travelerId": "b"}
	],
	"links": {"self": "https://example.test/offers/77"},
	"lastTicketingDate": "2026-10-20",
	"itineraries": [
		{"segments": [
			{"arrival": {"at": "2026-11-01T16:50:00", "iataCode": "LIS"}, "departure": {"at": "2026-11-01T11:35:00", "iataCode": "syd"}, "carrierCode": "tp", "number": "1234"},
			{"departure": {"iataCode": "LIS", "at": "2026-11-01T19:00"}, "arrival": {"iataCode": "MAD", "at": "2026-11-01T21:15:00"}, "carrierCode": "TP"}
		], "duration": "PT14H15M"}
	],
	"price": {"total": "355.340", "currency": "eur"},
	"id": "77"
}`

func parse(t *testing.T, raw string) models.Offer {
	t.Helper()
	offer, err := models.ParseOffer(json.RawMessage(raw))
	require.NoError(t, err)
	return *offer
}

func mustFingerprint(t *testing.T, offer models.Offer) string {
	t.Helper()
	fp, err := FromOffer(offer)
	require.NoError(t, err)
	return fp
}

func TestFromOffer_ShapeAndDeterminism(t *testing.T) {
	offer := parse(t, baseOffer)

	first := mustFingerprint(t, offer)
	second := mustFingerprint(t, offer)

	assert.Equal(t, first, second)
	assert.Len(t, first, Length)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z2-7]+$`), first)
}

func TestFromOffer_ReorderedCopyMatches(t *testing.T) {
	a := parse(t, baseOffer)
	b := parse(t, reorderedOffer)

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
	assert.Equal(t, mustFingerprint(t, a), mustFingerprint(t, b))
}

func TestFromOffer_NearEqualOffersDiffer(t *testing.T) {
	base := parse(t, baseOffer)
	baseFP := mustFingerprint(t, base)

	tests := []struct {
		name   string
		mutate func(o *models.Offer)
	}{
		{"Price", func(o *models.Offer) { o.Price.Total = "355.35" }},
		{"Currency", func(o *models.Offer) { o.Price.Currency = "USD" }},
		{"Traveler count", func(o *models.Offer) { o.TravelerPricings = o.TravelerPricings[:1] }},
		{"Carrier", func(o *models.Offer) { o.Itineraries[0].Segments[1].CarrierCode = "IB" }},
		{"Origin", func(o *models.Offer) { o.Itineraries[0].Segments[0].Departure.IataCode = "MEL" }},
		{"Destination", func(o *models.Offer) { o.Itineraries[0].Segments[1].Arrival.IataCode = "BCN" }},
		{"Departure minute", func(o *models.Offer) { o.Itineraries[0].Segments[0].Departure.At = "2026-11-01T11:36:00" }},
		{"Segment order", func(o *models.Offer) {
			s := o.Itineraries[0].Segments
			s[0], s[1] = s[1], s[0]
		}},
	}

	seen := map[string]string{baseFP: "base"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := parse(t, baseOffer)
			tt.mutate(&offer)

			canonical, err := Canonicalize(offer)
			require.NoError(t, err)
			baseCanonical, err := Canonicalize(base)
			require.NoError(t, err)
			assert.NotEqual(t, baseCanonical, canonical)

			fp := mustFingerprint(t, offer)
			assert.NotEqual(t, baseFP, fp)
			if other, dup := seen[fp]; dup {
				t.Fatalf("fingerprint collision between %q and %q", tt.name, other)
			}
			seen[fp] = tt.name
		})
	}
}

func TestFromOffer_IgnoresNonCommercialFields(t *testing.T) {
	base := parse(t, baseOffer)
	offer := parse(t, baseOffer)
	offer.ID = "other-id"
	offer.Source = "NDC"
	offer.Itineraries[0].Duration = "PT15H"
	offer.Itineraries[0].Segments[0].Departure.Terminal = "3"
	offer.Itineraries[0].Segments[0].Number = "999"
	offer.TravelerPricings[0].FareDetailsBySegment[0].Cabin = "BUSINESS"

	assert.Equal(t, mustFingerprint(t, base), mustFingerprint(t, offer))
}

func TestFromOffer_ZonedInstantsCompareInUTC(t *testing.T) {
	a := parse(t, baseOffer)
	b := parse(t, baseOffer)
	a.Itineraries[0].Segments[0].Departure.At = "2026-11-01T11:35:00+11:00"
	b.Itineraries[0].Segments[0].Departure.At = "2026-11-01T00:35:00Z"

	assert.Equal(t, mustFingerprint(t, a), mustFingerprint(t, b))
}

func TestCanonicalize_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *models.Offer)
	}{
		{"Missing currency", func(o *models.Offer) { o.Price.Currency = "" }},
		{"Missing total", func(o *models.Offer) { o.Price.Total = "" }},
		{"Non decimal total", func(o *models.Offer) { o.Price.Total = "1,355.34" }},
		{"No travelers", func(o *models.Offer) { o.TravelerPricings = nil }},
		{"No segments", func(o *models.Offer) { o.Itineraries = nil }},
		{"Bad timestamp", func(o *models.Offer) { o.Itineraries[0].Segments[0].Departure.At = "01/11/2026 11:35" }},
		{"Missing carrier", func(o *models.Offer) { o.Itineraries[0].Segments[0].CarrierCode = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := parse(t, baseOffer)
			tt.mutate(&offer)

			_, err := Canonicalize(offer)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedOffer))
		})
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
		wantErr  bool
	}{
		{"355.34", "EUR", 35534, false},
		{"355.3", "EUR", 35530, false},
		{"355", "EUR", 35500, false},
		{"355.340000", "EUR", 35534, false},
		{".5", "USD", 50, false},
		{"12000", "JPY", 12000, false},
		{"12000.00", "JPY", 12000, false},
		{"12.345", "KWD", 12345, false},
		{"-10.00", "EUR", -1000, false},
		{"355.345", "EUR", 0, true},
		{"12000.5", "JPY", 0, true},
		{"abc", "EUR", 0, true},
		{"", "EUR", 0, true},
		{"99999999999999999999", "EUR", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.amount+"_"+tt.currency, func(t *testing.T) {
			got, err := MinorUnits(tt.amount, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigest(t *testing.T) {
	a, err := Digest([]interface{}{"x", 1}, 16)
	require.NoError(t, err)
	b, err := Digest([]interface{}{"x", 1}, 16)
	require.NoError(t, err)
	c, err := Digest([]interface{}{"x", 2}, 16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	full, err := Digest("x", 0)
	require.NoError(t, err)
	assert.Len(t, full, 52)

	_, err = Digest(make(chan int), 16)
	var encErr *EncodingError
	assert.True(t, errors.As(err, &encErr))
}
