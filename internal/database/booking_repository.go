package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/skyroute/booking-backend/internal/models"
)

const (
	uniqueViolation = "23505"

	dedupKeyConstraint = "bookings_dedup_key_key"

	bookingColumns = `
		id, booking_reference, pnr, aggregator_reference, offer_fingerprint, dedup_key,
		customer_id, guest_name, guest_email, passengers, contact,
		total_amount::text AS total_amount, currency, status,
		created_at, updated_at, cancelled_at`

	submissionColumns = `dedup_key, offer_fingerprint, state, last_error, created_at, updated_at`
)

// ErrDuplicateBooking is returned by Save when a confirmed booking with the same dedup key already exists
var ErrDuplicateBooking = errors.New("booking with this dedup key already exists")

// BookingRepository handles database operations for bookings and booking_submissions
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// FormatBookingReference renders a sequence value as a public booking reference
func FormatBookingReference(seq int64) string {
	return fmt.Sprintf("BKG-%04d", seq)
}

// ============================================================================
// BOOKINGS
// ============================================================================

// Save inserts a confirmed booking and clears its submission claim in one transaction.
// The booking reference is assigned from booking_reference_seq. A dedup key collision
// returns ErrDuplicateBooking and leaves the claim untouched.
func (r *BookingRepository) Save(ctx context.Context, booking *models.Booking) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT nextval('booking_reference_seq')`); err != nil {
		return fmt.Errorf("failed to allocate booking reference: %w", err)
	}

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.BookingReference = FormatBookingReference(seq)
	if booking.Status == "" {
		booking.Status = models.BookingStatusConfirmed
	}

	query := `
		INSERT INTO bookings (
			id, booking_reference, pnr, aggregator_reference, offer_fingerprint, dedup_key,
			customer_id, guest_name, guest_email, passengers, contact,
			total_amount, currency, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRowxContext(ctx, query,
		booking.ID, booking.BookingReference, booking.PNR, booking.AggregatorReference,
		booking.OfferFingerprint, booking.DedupKey,
		booking.CustomerID, booking.GuestName, booking.GuestEmail,
		booking.Passengers, booking.Contact,
		booking.TotalAmount, booking.Currency, booking.Status,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, dedupKeyConstraint) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_submissions WHERE dedup_key = $1`, booking.DedupKey); err != nil {
		return fmt.Errorf("failed to clear submission claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

// FindByReference retrieves a booking by its public reference
func (r *BookingRepository) FindByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return r.findOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_reference = $1`, reference)
}

// FindByDedupKey retrieves the confirmed booking created for a dedup key.
// Cancelled bookings are ignored so the same submission can be booked again.
func (r *BookingRepository) FindByDedupKey(ctx context.Context, dedupKey string) (*models.Booking, error) {
	return r.findOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE dedup_key = $1 AND status = 'confirmed'`, dedupKey)
}

func (r *BookingRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// FindByCustomer lists a customer's bookings, newest first
func (r *BookingRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at DESC, booking_reference DESC
		LIMIT $2 OFFSET $3`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, customerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// Cancel moves a confirmed booking to cancelled. Cancelling an already cancelled booking
// returns it unchanged; an unknown reference returns nil, nil.
func (r *BookingRepository) Cancel(ctx context.Context, reference string) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE booking_reference = $1 AND status = 'confirmed'
		RETURNING ` + bookingColumns

	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, query, reference)
	if err == sql.ErrNoRows {
		return r.FindByReference(ctx, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	return &booking, nil
}

// ============================================================================
// SUBMISSION CLAIMS
// ============================================================================

// ClaimSubmission inserts an in_flight claim for the dedup key. When a claim already
// exists it is returned with claimed=false.
func (r *BookingRepository) ClaimSubmission(ctx context.Context, dedupKey, fingerprint string) (*models.BookingSubmission, bool, error) {
	query := `
		INSERT INTO booking_submissions (dedup_key, offer_fingerprint, state)
		VALUES ($1, $2, 'in_flight')
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING ` + submissionColumns

	var submission models.BookingSubmission
	err := r.db.GetContext(ctx, &submission, query, dedupKey, fingerprint)
	if err == nil {
		return &submission, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to claim submission: %w", err)
	}

	existing, err := r.FindSubmission(ctx, dedupKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Claim vanished between the insert and the read; the caller may retry
		return nil, false, fmt.Errorf("failed to claim submission: claim for %s released concurrently", dedupKey)
	}
	return existing, false, nil
}

// FindSubmission retrieves the claim for a dedup key
func (r *BookingRepository) FindSubmission(ctx context.Context, dedupKey string) (*models.BookingSubmission, error) {
	var submission models.BookingSubmission
	err := r.db.GetContext(ctx, &submission, `SELECT `+submissionColumns+` FROM booking_submissions WHERE dedup_key = $1`, dedupKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

// ReleaseSubmission removes an in_flight claim after a clean aggregator failure
func (r *BookingRepository) ReleaseSubmission(ctx context.Context, dedupKey string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM booking_submissions WHERE dedup_key = $1 AND state = 'in_flight'`, dedupKey)
	if err != nil {
		return fmt.Errorf("failed to release submission: %w", err)
	}
	return nil
}

// MarkSubmissionAmbiguous records that the aggregator outcome is unknown
func (r *BookingRepository) MarkSubmissionAmbiguous(ctx context.Context, dedupKey, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE booking_submissions
		SET state = 'ambiguous', last_error = $2, updated_at = NOW()
		WHERE dedup_key = $1`, dedupKey, reason)
	if err != nil {
		return fmt.Errorf("failed to mark submission ambiguous: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("submission claim not found: %s", dedupKey)
	}
	return nil
}

// MarkStaleSubmissionsAmbiguous flags in_flight claims older than the cutoff. Such claims
// belong to calls whose process died before recording an outcome.
func (r *BookingRepository) MarkStaleSubmissionsAmbiguous(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE booking_submissions
		SET state = 'ambiguous', last_error = 'stale in-flight claim', updated_at = NOW()
		WHERE state = 'in_flight' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale submissions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ListAmbiguousSubmissions returns claims waiting for support, oldest first
func (r *BookingRepository) ListAmbiguousSubmissions(ctx context.Context, limit int) ([]models.BookingSubmission, error) {
	if limit <= 0 {
		limit = 50
	}
	submissions := []models.BookingSubmission{}
	err := r.db.SelectContext(ctx, &submissions, `
		SELECT `+submissionColumns+`
		FROM booking_submissions
		WHERE state = 'ambiguous'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ambiguous submissions: %w", err)
	}
	return submissions, nil
}

// ResolveSubmission deletes an ambiguous claim once support has checked the aggregator,
// allowing the same submission to be made again
func (r *BookingRepository) ResolveSubmission(ctx context.Context, dedupKey string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM booking_submissions WHERE dedup_key = $1 AND state = 'ambiguous'`, dedupKey)
	if err != nil {
		return fmt.Errorf("failed to resolve submission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ambiguous submission not found: %s", dedupKey)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}
