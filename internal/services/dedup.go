package services

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/pkg/fingerprint"
)

const (
	dedupKeyVersion = "booking-dedup/v1"
	dedupKeyLength  = 40
)

type dedupDocument struct {
	Type        string `json:"t"`
	Number      string `json:"n"`
	Nationality string `json:"c"`
}

type dedupPassenger struct {
	First       string          `json:"f"`
	Last        string          `json:"l"`
	DateOfBirth string          `json:"d"`
	Gender      string          `json:"g"`
	Nationality string          `json:"c"`
	Documents   []dedupDocument `json:"docs"`
}

// DedupKey identifies a submission by (fingerprint, contact email, passenger set).
// Passenger order, letter case and surrounding whitespace do not change the key.
func DedupKey(offerFingerprint, contactEmail string, passengers []models.Passenger) (string, error) {
	projected := make([]string, 0, len(passengers))
	for _, p := range passengers {
		dp := dedupPassenger{
			First:       strings.ToLower(strings.TrimSpace(p.Name.First)),
			Last:        strings.ToLower(strings.TrimSpace(p.Name.Last)),
			DateOfBirth: strings.TrimSpace(p.DateOfBirth),
			Gender:      strings.ToUpper(strings.TrimSpace(p.Gender)),
			Nationality: strings.ToUpper(strings.TrimSpace(p.Nationality)),
			Documents:   make([]dedupDocument, 0, len(p.Documents)),
		}
		for _, d := range p.Documents {
			dp.Documents = append(dp.Documents, dedupDocument{
				Type:        strings.ToUpper(strings.TrimSpace(d.Type)),
				Number:      strings.ToUpper(strings.TrimSpace(d.Number)),
				Nationality: strings.ToUpper(strings.TrimSpace(d.Nationality)),
			})
		}
		sort.Slice(dp.Documents, func(i, j int) bool {
			a, b := dp.Documents[i], dp.Documents[j]
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			if a.Number != b.Number {
				return a.Number < b.Number
			}
			return a.Nationality < b.Nationality
		})

		encoded, err := json.Marshal(dp)
		if err != nil {
			return "", &fingerprint.EncodingError{Err: err}
		}
		projected = append(projected, string(encoded))
	}
	sort.Strings(projected)

	return fingerprint.Digest([]interface{}{
		dedupKeyVersion,
		offerFingerprint,
		strings.ToLower(strings.TrimSpace(contactEmail)),
		projected,
	}, dedupKeyLength)
}
