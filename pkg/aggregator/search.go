package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
)

// SearchParams are the flight search criteria
type SearchParams struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	Children      int
	Max           int
}

// SearchResult holds the raw offers and dictionaries of a search response.
// Offers stay raw so that fields this service does not model reach the booking call unchanged.
type SearchResult struct {
	Offers       []json.RawMessage
	Dictionaries json.RawMessage
}

type searchEnvelope struct {
	Data         []json.RawMessage `json:"data"`
	Dictionaries json.RawMessage   `json:"dictionaries,omitempty"`
}

func (p SearchParams) query() url.Values {
	q := url.Values{}
	q.Set("originLocationCode", p.Origin)
	q.Set("destinationLocationCode", p.Destination)
	q.Set("departureDate", p.DepartureDate)
	if p.ReturnDate != "" {
		q.Set("returnDate", p.ReturnDate)
	}
	adults := p.Adults
	if adults <= 0 {
		adults = 1
	}
	q.Set("adults", strconv.Itoa(adults))
	if p.Children > 0 {
		q.Set("children", strconv.Itoa(p.Children))
	}
	if p.Max > 0 {
		q.Set("max", strconv.Itoa(p.Max))
	}
	return q
}

// Search queries the aggregator for flight offers
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	c.logger.WithFields(logrus.Fields{
		"origin":         params.Origin,
		"destination":    params.Destination,
		"departure_date": params.DepartureDate,
		"adults":         params.Adults,
	}).Info("Searching aggregator offers")

	resp, _, err := c.do(ctx, c.client, http.MethodGet, searchPath, params.query(), nil, nil)
	if err != nil {
		c.logger.WithError(err).Error("Aggregator search request failed")
		return nil, fmt.Errorf("aggregator search failed: %w", err)
	}

	if resp.status < 200 || resp.status >= 300 {
		if apiErr := parseAPIError(resp.status, resp.body); apiErr != nil {
			return nil, apiErr
		}
		return nil, &APIError{Status: resp.status, Code: ReasonHTTPStatus, Detail: truncate(string(resp.body), 200)}
	}

	var env searchEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	c.logger.WithField("offers", len(env.Data)).Info("Aggregator search completed")

	return &SearchResult{
		Offers:       env.Data,
		Dictionaries: env.Dictionaries,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
