package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/pkg/validator"
)

// BookRequest is everything the aggregator needs to create a flight order
type BookRequest struct {
	// IdempotencyKey is sent as the Idempotency-Key header; resends with the same key
	// must not create a second order
	IdempotencyKey string
	Offer          json.RawMessage
	Passengers     []models.Passenger
	Contact        models.ContactInfo
	CustomerID     string
	GuestName      string
	GuestEmail     string
}

// BookResult is a confirmed aggregator order
type BookResult struct {
	OrderID string
	PNR     string
}

// ============================================================================
// WIRE FORMAT
// ============================================================================

type orderEnvelope struct {
	Data orderData `json:"data"`
}

type orderData struct {
	Type         string            `json:"type"`
	FlightOffers []json.RawMessage `json:"flightOffers"`
	Travelers    []traveler        `json:"travelers"`
	Contacts     []contact         `json:"contacts"`
	CustomerID   string            `json:"customerId,omitempty"`
	GuestEmail   string            `json:"guestEmail,omitempty"`
	GuestName    string            `json:"guestName,omitempty"`
}

type travelerName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type traveler struct {
	ID          string         `json:"id"`
	DateOfBirth string         `json:"dateOfBirth"`
	Name        travelerName   `json:"name"`
	Gender      string         `json:"gender"`
	Documents   []travelerDocs `json:"documents,omitempty"`
}

type travelerDocs struct {
	DocumentType string `json:"documentType"`
	Number       string `json:"number,omitempty"`
	ExpiryDate   string `json:"expiryDate,omitempty"`
	Nationality  string `json:"nationality"`
	Holder       bool   `json:"holder"`
}

type phone struct {
	DeviceType         string `json:"deviceType"`
	CountryCallingCode string `json:"countryCallingCode"`
	Number             string `json:"number"`
}

type contact struct {
	AddresseeName travelerName `json:"addresseeName"`
	EmailAddress  string       `json:"emailAddress"`
	Phones        []phone      `json:"phones,omitempty"`
	Purpose       string       `json:"purpose"`
}

type orderResponse struct {
	Data struct {
		ID                string `json:"id"`
		AssociatedRecords []struct {
			Reference string `json:"reference"`
		} `json:"associatedRecords"`
	} `json:"data"`
}

func buildOrder(req BookRequest) orderEnvelope {
	travelers := make([]traveler, 0, len(req.Passengers))
	for i, p := range req.Passengers {
		seq := p.SequenceNumber
		if seq <= 0 {
			seq = i + 1
		}
		t := traveler{
			ID:          strconv.Itoa(seq),
			DateOfBirth: p.DateOfBirth,
			Name:        travelerName{FirstName: p.Name.First, LastName: p.Name.Last},
			Gender:      p.Gender,
		}
		for _, d := range p.Documents {
			t.Documents = append(t.Documents, travelerDocs{
				DocumentType: d.Type,
				Number:       d.Number,
				ExpiryDate:   d.ExpiryDate,
				Nationality:  d.Nationality,
				Holder:       true,
			})
		}
		travelers = append(travelers, t)
	}

	c := contact{
		EmailAddress: req.Contact.Email,
		Purpose:      "STANDARD",
	}
	if len(req.Passengers) > 0 {
		c.AddresseeName = travelerName{FirstName: req.Passengers[0].Name.First, LastName: req.Passengers[0].Name.Last}
	}
	if req.Contact.Phone != "" {
		if code, number, err := validator.NewPhoneValidator().CountryCallingCode(req.Contact.Phone); err == nil {
			c.Phones = []phone{{DeviceType: "MOBILE", CountryCallingCode: code, Number: number}}
		}
	}

	return orderEnvelope{Data: orderData{
		Type:         "flight-order",
		FlightOffers: []json.RawMessage{req.Offer},
		Travelers:    travelers,
		Contacts:     []contact{c},
		CustomerID:   req.CustomerID,
		GuestEmail:   req.GuestEmail,
		GuestName:    req.GuestName,
	}}
}

// Book creates a flight order. Failures are returned as *BookingError.
func (c *Client) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	payload, err := json.Marshal(buildOrder(req))
	if err != nil {
		return nil, &BookingError{Reason: ReasonInvalidRequest, Message: "failed to encode order", Err: err}
	}

	log := c.logger.WithFields(logrus.Fields{
		"idempotency_key": req.IdempotencyKey,
		"travelers":       len(req.Passengers),
		"guest":           req.CustomerID == "",
	})
	log.Info("Creating aggregator flight order")

	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	resp, out, err := c.do(ctx, c.bookClient, http.MethodPost, bookingPath, nil, payload, header)
	if err != nil {
		bookingErr := &BookingError{
			Reason:    ReasonConnection,
			Message:   "could not reach the booking provider",
			Ambiguous: out.wroteRequest,
			Err:       err,
		}
		if isTimeout(err) {
			bookingErr.Reason = ReasonTimeout
			bookingErr.Message = "the booking provider did not answer in time"
		}
		log.WithFields(logrus.Fields{
			"attempts":  out.attempts,
			"ambiguous": bookingErr.Ambiguous,
			"error":     err.Error(),
		}).Error("Aggregator booking call failed")
		return nil, bookingErr
	}

	if resp.status < 200 || resp.status >= 300 {
		bookingErr := &BookingError{Status: resp.status}
		if apiErr := parseAPIError(resp.status, resp.body); apiErr != nil {
			bookingErr.Reason = apiErr.Code
			bookingErr.Message = apiErr.Detail
			if bookingErr.Message == "" {
				bookingErr.Message = apiErr.Title
			}
			bookingErr.Err = apiErr
		} else {
			bookingErr.Reason = ReasonHTTPStatus
			bookingErr.Message = fmt.Sprintf("booking provider returned status %d", resp.status)
			bookingErr.Ambiguous = resp.status == http.StatusGatewayTimeout
		}
		log.WithFields(logrus.Fields{
			"status":    resp.status,
			"reason":    bookingErr.Reason,
			"ambiguous": bookingErr.Ambiguous,
		}).Warn("Aggregator rejected booking")
		return nil, bookingErr
	}

	var order orderResponse
	if err := json.Unmarshal(resp.body, &order); err != nil || order.Data.ID == "" || len(order.Data.AssociatedRecords) == 0 || order.Data.AssociatedRecords[0].Reference == "" {
		// The order may exist even though the answer is unreadable
		log.WithField("body", truncate(string(resp.body), 500)).Error("Unreadable aggregator booking response")
		return nil, &BookingError{
			Reason:    ReasonMalformedResponse,
			Message:   "the booking provider returned an unreadable confirmation",
			Status:    resp.status,
			Ambiguous: true,
			Err:       err,
		}
	}

	result := &BookResult{
		OrderID: order.Data.ID,
		PNR:     order.Data.AssociatedRecords[0].Reference,
	}
	log.WithFields(logrus.Fields{
		"order_id": result.OrderID,
		"pnr":      result.PNR,
	}).Info("Aggregator flight order created")
	return result, nil
}
