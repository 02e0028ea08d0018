package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/cache"
	"github.com/skyroute/booking-backend/internal/database"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/pkg/aggregator"
	"github.com/skyroute/booking-backend/pkg/validator"
)

var (
	// ErrIdentityIncomplete means a guest submission lacks a name or email
	ErrIdentityIncomplete = errors.New("guest bookings require a name and an email")

	// ErrSubmissionInProgress means the same submission is already being sent to the aggregator
	ErrSubmissionInProgress = errors.New("an identical booking submission is already in progress")

	// ErrOutcomeUnknown means an earlier identical submission ended without a clear answer
	// from the aggregator; support must reconcile it before anything is resent
	ErrOutcomeUnknown = errors.New("the outcome of an earlier identical submission is unknown")

	// ErrBookingNotFound is returned for unknown references and bookings owned by someone else
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAuthenticationRequired is returned when listing bookings without a customer token
	ErrAuthenticationRequired = errors.New("authentication required")
)

// ExternalBookingError is an aggregator failure surfaced to the caller. No booking was
// persisted. Ambiguous failures must not be retried by the client.
type ExternalBookingError struct {
	Reason    string
	Message   string
	Ambiguous bool
	Err       error
}

func (e *ExternalBookingError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("booking outcome unknown (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("booking rejected by provider (%s): %s", e.Reason, e.Message)
}

func (e *ExternalBookingError) Unwrap() error {
	return e.Err
}

// BookingStore is the persistence the coordinator needs
type BookingStore interface {
	Save(ctx context.Context, booking *models.Booking) error
	FindByReference(ctx context.Context, reference string) (*models.Booking, error)
	FindByDedupKey(ctx context.Context, dedupKey string) (*models.Booking, error)
	FindByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error)
	Cancel(ctx context.Context, reference string) (*models.Booking, error)
	ClaimSubmission(ctx context.Context, dedupKey, fingerprint string) (*models.BookingSubmission, bool, error)
	ReleaseSubmission(ctx context.Context, dedupKey string) error
	MarkSubmissionAmbiguous(ctx context.Context, dedupKey, reason string) error
}

// BookingAggregator creates orders at the external provider
type BookingAggregator interface {
	Book(ctx context.Context, req aggregator.BookRequest) (*aggregator.BookResult, error)
}

// SubmitResult is the outcome of a successful submission. Duplicate is set when the
// booking already existed and no external call was made.
type SubmitResult struct {
	Booking   *models.Booking
	Duplicate bool
}

// BookingCoordinator turns a cached offer plus passenger and contact data into a booking
type BookingCoordinator struct {
	store      BookingStore
	offers     cache.OfferCache
	aggregator BookingAggregator
	logger     *logrus.Logger
	now        func() time.Time
}

// NewBookingCoordinator creates a new BookingCoordinator
func NewBookingCoordinator(
	store BookingStore,
	offers cache.OfferCache,
	agg BookingAggregator,
	logger *logrus.Logger,
) *BookingCoordinator {
	return &BookingCoordinator{
		store:      store,
		offers:     offers,
		aggregator: agg,
		logger:     logger,
		now:        time.Now,
	}
}

// ============================================================================
// SUBMIT
// ============================================================================

// Submit books the offer identified by req.Fingerprint for the session in scope.
// At most one aggregator call is made per distinct submission.
func (s *BookingCoordinator) Submit(ctx context.Context, scope models.RequestScope, req models.SubmitBookingRequest) (*SubmitResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"request_id":    scope.RequestID,
		"session_id":    scope.SessionID,
		"fingerprint":   req.Fingerprint,
		"authenticated": scope.IsAuthenticated(),
	})

	// 1. Identity
	identity, contact, err := resolveIdentity(scope, req)
	if err != nil {
		return nil, err
	}
	passengers := normalizePassengers(req.Passengers)

	// 2. Dedup lookup
	dedupKey, err := DedupKey(req.Fingerprint, contact.Email, passengers)
	if err != nil {
		return nil, fmt.Errorf("failed to derive dedup key: %w", err)
	}
	log = log.WithField("dedup_key", dedupKey)

	existing, err := s.store.FindByDedupKey(ctx, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing booking: %w", err)
	}
	if existing != nil {
		log.WithField("booking_reference", existing.BookingReference).Info("Duplicate submission, returning existing booking")
		return &SubmitResult{Booking: existing, Duplicate: true}, nil
	}

	// 3. Offer
	cached, err := s.offers.Get(ctx, scope.SessionID, req.Fingerprint)
	if err != nil {
		log.WithError(err).Info("Offer not available for booking")
		return nil, err
	}

	// 4. Validation
	if err := ValidateSubmission(&cached.Offer, passengers, contact, identity, s.now()); err != nil {
		log.WithError(err).Info("Booking submission rejected")
		return nil, err
	}

	// 5. Claim the dedup key
	submission, claimed, err := s.store.ClaimSubmission(ctx, dedupKey, req.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to claim submission: %w", err)
	}
	if !claimed {
		return s.resolveUnclaimed(ctx, log, dedupKey, submission)
	}

	// 6. Aggregator call
	bookReq := aggregator.BookRequest{
		IdempotencyKey: dedupKey,
		Offer:          cached.Raw,
		Passengers:     passengers,
		Contact:        contact,
	}
	switch id := identity.(type) {
	case models.CustomerIdentity:
		bookReq.CustomerID = id.CustomerID.String()
	case models.GuestIdentity:
		bookReq.GuestName = id.Name
		bookReq.GuestEmail = id.Email
	}

	result, err := s.aggregator.Book(ctx, bookReq)

	// Bookkeeping after the aggregator call ignores client cancellation
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		return nil, s.handleBookingFailure(persistCtx, log, dedupKey, err)
	}

	// 7. Persist
	pnr := result.PNR
	orderID := result.OrderID
	booking := &models.Booking{
		PNR:                 &pnr,
		AggregatorReference: &orderID,
		OfferFingerprint:    req.Fingerprint,
		DedupKey:            dedupKey,
		Passengers:          passengers,
		Contact:             contact,
		TotalAmount:         string(cached.Offer.Price.Total),
		Currency:            strings.ToUpper(strings.TrimSpace(cached.Offer.Price.Currency)),
		Status:              models.BookingStatusConfirmed,
	}
	switch id := identity.(type) {
	case models.CustomerIdentity:
		customerID := id.CustomerID
		booking.CustomerID = &customerID
	case models.GuestIdentity:
		name, email := id.Name, id.Email
		booking.GuestName = &name
		booking.GuestEmail = &email
	}

	if err := s.store.Save(persistCtx, booking); err != nil {
		if errors.Is(err, database.ErrDuplicateBooking) {
			winner, findErr := s.store.FindByDedupKey(persistCtx, dedupKey)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load existing booking: %w", findErr)
			}
			if winner != nil {
				log.WithField("booking_reference", winner.BookingReference).Warn("Concurrent submission already stored this booking")
				return &SubmitResult{Booking: winner, Duplicate: true}, nil
			}
		}

		// The order exists at the aggregator but not here
		log.WithFields(logrus.Fields{
			"pnr":      pnr,
			"order_id": orderID,
			"error":    err.Error(),
		}).Error("Failed to persist confirmed booking")
		if markErr := s.store.MarkSubmissionAmbiguous(persistCtx, dedupKey, "persist failed after confirmation: "+pnr); markErr != nil {
			log.WithError(markErr).Error("Failed to mark submission ambiguous")
		}
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	if err := s.offers.Delete(persistCtx, scope.SessionID, req.Fingerprint); err != nil {
		log.WithError(err).Warn("Failed to drop booked offer from cache")
	}

	log.WithFields(logrus.Fields{
		"booking_reference": booking.BookingReference,
		"pnr":               pnr,
		"passengers":        len(passengers),
	}).Info("Booking confirmed")

	return &SubmitResult{Booking: booking}, nil
}

// resolveUnclaimed handles a dedup key that another submission holds
func (s *BookingCoordinator) resolveUnclaimed(ctx context.Context, log *logrus.Entry, dedupKey string, submission *models.BookingSubmission) (*SubmitResult, error) {
	// A concurrent submission may have finished between the lookup and the claim
	existing, err := s.store.FindByDedupKey(ctx, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing booking: %w", err)
	}
	if existing != nil {
		return &SubmitResult{Booking: existing, Duplicate: true}, nil
	}

	if submission != nil && submission.State == models.SubmissionAmbiguous {
		log.Warn("Resubmission blocked, earlier outcome unknown")
		return nil, ErrOutcomeUnknown
	}
	log.Info("Identical submission already in flight")
	return nil, ErrSubmissionInProgress
}

// handleBookingFailure releases or flags the claim and converts the error for callers
func (s *BookingCoordinator) handleBookingFailure(ctx context.Context, log *logrus.Entry, dedupKey string, err error) error {
	extErr := &ExternalBookingError{
		Reason:    aggregator.ReasonConnection,
		Message:   "the booking provider could not be reached",
		Ambiguous: true,
		Err:       err,
	}
	var bookingErr *aggregator.BookingError
	if errors.As(err, &bookingErr) {
		extErr.Reason = bookingErr.Reason
		extErr.Message = bookingErr.Message
		extErr.Ambiguous = bookingErr.Ambiguous
	}

	log = log.WithFields(logrus.Fields{
		"reason":    extErr.Reason,
		"ambiguous": extErr.Ambiguous,
	})

	if extErr.Ambiguous {
		log.Error("Aggregator outcome unknown, submission needs support")
		if markErr := s.store.MarkSubmissionAmbiguous(ctx, dedupKey, extErr.Reason+": "+extErr.Message); markErr != nil {
			log.WithError(markErr).Error("Failed to mark submission ambiguous")
		}
		return extErr
	}

	log.Warn("Aggregator rejected booking")
	if relErr := s.store.ReleaseSubmission(ctx, dedupKey); relErr != nil {
		log.WithError(relErr).Error("Failed to release submission claim")
	}
	return extErr
}

// resolveIdentity picks the identity variant and fills contact defaults from it
func resolveIdentity(scope models.RequestScope, req models.SubmitBookingRequest) (models.Identity, models.ContactInfo, error) {
	contact := models.ContactInfo{
		Email:             strings.TrimSpace(req.Contact.Email),
		Phone:             strings.TrimSpace(req.Contact.Phone),
		DisplayName:       strings.TrimSpace(req.Contact.DisplayName),
		ConfirmationEmail: strings.TrimSpace(req.Contact.ConfirmationEmail),
	}

	if scope.Customer != nil {
		if contact.Email == "" {
			contact.Email = scope.Customer.ContactEmail()
		}
		return *scope.Customer, contact, nil
	}

	guest := models.GuestIdentity{
		Name:  strings.TrimSpace(req.GuestName),
		Email: strings.TrimSpace(req.GuestEmail),
	}
	if guest.Name == "" {
		guest.Name = contact.DisplayName
	}
	if guest.Email == "" {
		guest.Email = contact.Email
	}
	if guest.Name == "" || guest.Email == "" {
		return nil, contact, ErrIdentityIncomplete
	}

	if contact.Email == "" {
		contact.Email = guest.Email
	}
	if contact.DisplayName == "" {
		contact.DisplayName = guest.Name
	}
	return guest, contact, nil
}

// ============================================================================
// READ & CANCEL
// ============================================================================

// Get returns a booking visible to the caller. Customers see their own bookings;
// guests need the reference plus the guest email.
func (s *BookingCoordinator) Get(ctx context.Context, scope models.RequestScope, reference, guestEmail string) (*models.Booking, error) {
	booking, err := s.store.FindByReference(ctx, strings.ToUpper(strings.TrimSpace(reference)))
	if err != nil {
		return nil, err
	}
	if booking == nil || !canAccess(scope, booking, guestEmail) {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

func canAccess(scope models.RequestScope, booking *models.Booking, guestEmail string) bool {
	if booking.CustomerID != nil {
		return scope.Customer != nil && scope.Customer.CustomerID == *booking.CustomerID
	}
	if booking.GuestEmail == nil || strings.TrimSpace(guestEmail) == "" {
		return false
	}
	return validator.SameEmail(*booking.GuestEmail, guestEmail)
}

// List returns the authenticated customer's bookings, newest first
func (s *BookingCoordinator) List(ctx context.Context, scope models.RequestScope, limit, offset int) ([]models.Booking, error) {
	if !scope.IsAuthenticated() {
		return nil, ErrAuthenticationRequired
	}
	return s.store.FindByCustomer(ctx, scope.Customer.CustomerID, limit, offset)
}

// Cancel moves a booking to cancelled. Cancelling twice returns the cancelled booking.
func (s *BookingCoordinator) Cancel(ctx context.Context, scope models.RequestScope, reference, guestEmail string) (*models.Booking, error) {
	booking, err := s.Get(ctx, scope, reference, guestEmail)
	if err != nil {
		return nil, err
	}
	if !booking.CanCancel() {
		return booking, nil
	}

	cancelled, err := s.store.Cancel(ctx, booking.BookingReference)
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		return nil, ErrBookingNotFound
	}

	s.logger.WithFields(logrus.Fields{
		"request_id":        scope.RequestID,
		"booking_reference": cancelled.BookingReference,
		"guest":             cancelled.IsGuest(),
	}).Info("Booking cancelled")
	return cancelled, nil
}
