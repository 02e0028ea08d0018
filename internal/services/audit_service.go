package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skyroute/booking-backend/internal/cache"
	"github.com/skyroute/booking-backend/internal/database"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/internal/utils"
	"github.com/skyroute/booking-backend/pkg/fingerprint"
)

// Audit actions
const (
	AuditBookingConfirmed      = "booking_confirmed"
	AuditBookingDuplicate      = "booking_duplicate"
	AuditBookingRejected       = "booking_rejected"
	AuditBookingOutcomeUnknown = "booking_outcome_unknown"
	AuditBookingBlocked        = "booking_blocked_pending_support"
	AuditBookingError          = "booking_error"
	AuditBookingCancelled      = "booking_cancelled"
)

// AuditService writes booking lifecycle events to booking_audit_logs
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// AuditMeta describes the request an event came from
type AuditMeta struct {
	RequestID  string
	SessionID  string
	CustomerID *uuid.UUID
	IPAddress  string
	UserAgent  string
}

// AuditEvent represents a booking event to be logged
type AuditEvent struct {
	Action           string
	BookingReference *string
	OfferFingerprint string
	Meta             AuditMeta
	Details          map[string]interface{}
}

// AuditRecord is a stored audit event
type AuditRecord struct {
	Action           string          `json:"action" db:"action"`
	BookingReference *string         `json:"booking_reference,omitempty" db:"booking_reference"`
	OfferFingerprint *string         `json:"offer_fingerprint,omitempty" db:"offer_fingerprint"`
	SessionID        *string         `json:"session_id,omitempty" db:"session_id"`
	IPAddress        *string         `json:"ip_address,omitempty" db:"ip_address"`
	Details          json.RawMessage `json:"details" db:"details"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// LogSubmission records the outcome of a booking submission. Client-side failures
// (validation, unknown offer) are not recorded.
func (s *AuditService) LogSubmission(ctx context.Context, meta AuditMeta, fingerprint string, result *SubmitResult, err error) error {
	action, details := classifySubmission(result, err)
	if action == "" {
		return nil
	}
	details["device_info"] = utils.ParseUserAgent(meta.UserAgent)

	var reference *string
	if result != nil && result.Booking != nil {
		reference = &result.Booking.BookingReference
	}

	return s.logEvent(ctx, AuditEvent{
		Action:           action,
		BookingReference: reference,
		OfferFingerprint: fingerprint,
		Meta:             meta,
		Details:          details,
	})
}

// LogCancellation records a cancelled booking
func (s *AuditService) LogCancellation(ctx context.Context, meta AuditMeta, booking *models.Booking) error {
	details := map[string]interface{}{
		"status":      booking.Status,
		"guest":       booking.IsGuest(),
		"device_info": utils.ParseUserAgent(meta.UserAgent),
	}
	if booking.PNR != nil {
		details["pnr"] = *booking.PNR
	}

	return s.logEvent(ctx, AuditEvent{
		Action:           AuditBookingCancelled,
		BookingReference: &booking.BookingReference,
		OfferFingerprint: booking.OfferFingerprint,
		Meta:             meta,
		Details:          details,
	})
}

func classifySubmission(result *SubmitResult, err error) (string, map[string]interface{}) {
	details := map[string]interface{}{}
	var extErr *ExternalBookingError
	var verr *ValidationError

	switch {
	case err == nil && result != nil && result.Duplicate:
		return AuditBookingDuplicate, details
	case err == nil && result != nil:
		if result.Booking.PNR != nil {
			details["pnr"] = *result.Booking.PNR
		}
		details["total_amount"] = result.Booking.TotalAmount
		details["currency"] = result.Booking.Currency
		details["passengers"] = len(result.Booking.Passengers)
		return AuditBookingConfirmed, details
	case errors.As(err, &extErr):
		details["reason"] = extErr.Reason
		details["message"] = extErr.Message
		if extErr.Ambiguous {
			return AuditBookingOutcomeUnknown, details
		}
		return AuditBookingRejected, details
	case errors.Is(err, ErrOutcomeUnknown):
		return AuditBookingBlocked, details
	case err == nil,
		errors.As(err, &verr),
		errors.Is(err, ErrIdentityIncomplete),
		errors.Is(err, ErrSubmissionInProgress),
		isOfferError(err):
		return "", nil
	default:
		details["error"] = err.Error()
		return AuditBookingError, details
	}
}

// logEvent writes one row to booking_audit_logs
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO booking_audit_logs (
			action, booking_reference, offer_fingerprint, customer_id,
			session_id, request_id, ip_address, user_agent, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		event.Action,
		event.BookingReference,
		nullIfEmpty(event.OfferFingerprint),
		event.Meta.CustomerID,
		nullIfEmpty(event.Meta.SessionID),
		nullIfEmpty(event.Meta.RequestID),
		nullIfEmpty(event.Meta.IPAddress),
		nullIfEmpty(event.Meta.UserAgent),
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// GetBookingEvents retrieves the audit trail of a booking, newest first
func (s *AuditService) GetBookingEvents(ctx context.Context, bookingReference string, limit int) ([]AuditRecord, error) {
	query := `
		SELECT action, booking_reference, offer_fingerprint, session_id, ip_address, details, created_at
		FROM booking_audit_logs
		WHERE booking_reference = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	events := []AuditRecord{}
	if err := s.db.SelectContext(ctx, &events, query, bookingReference, limit); err != nil {
		return nil, fmt.Errorf("failed to get booking events: %w", err)
	}
	return events, nil
}

// CleanupOldAuditLogs removes audit logs created before the cutoff
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM booking_audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func isOfferError(err error) bool {
	return errors.Is(err, cache.ErrOfferNotFound) ||
		errors.Is(err, cache.ErrInvalidPayload) ||
		errors.Is(err, fingerprint.ErrMalformedOffer) ||
		errors.Is(err, ErrNoTravelers)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
