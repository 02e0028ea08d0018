package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/cache"
	"github.com/skyroute/booking-backend/internal/database"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/pkg/aggregator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSession     = "session-1"
	testFingerprint = "ABCD1234"

	twoTravelerOffer = `{
		"id": "1",
		"source": "GDS",
		"price": {"currency": "EUR", "total": "355.34", "grandTotal": "355.34"},
		"itineraries": [{"duration": "PT1H15M", "segments": [{
			"carrierCode": "TP", "number": "1020",
			"departure": {"iataCode": "LIS", "at": "2026-12-01T10:00:00"},
			"arrival": {"iataCode": "MAD", "at": "2026-12-01T12:15:00"}
		}]}],
		"travelerPricings": [
			{"travelerId": "1", "travelerType": "ADULT"},
			{"travelerId": "2", "travelerType": "ADULT"}
		]
	}`
)

// ============================================================================
// FAKES
// ============================================================================

type fakeStore struct {
	mu       sync.Mutex
	seq      int64
	bookings map[string]*models.Booking
	byDedup  map[string]string
	claims   map[string]*models.BookingSubmission
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: map[string]*models.Booking{},
		byDedup:  map[string]string{},
		claims:   map[string]*models.BookingSubmission{},
	}
}

func (f *fakeStore) Save(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return f.saveErr
	}
	if ref, ok := f.byDedup[booking.DedupKey]; ok && f.bookings[ref].Status == models.BookingStatusConfirmed {
		return database.ErrDuplicateBooking
	}
	f.seq++
	booking.ID = uuid.New()
	booking.BookingReference = database.FormatBookingReference(f.seq)
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	stored := *booking
	f.bookings[booking.BookingReference] = &stored
	f.byDedup[booking.DedupKey] = booking.BookingReference
	delete(f.claims, booking.DedupKey)
	return nil
}

func (f *fakeStore) FindByReference(ctx context.Context, reference string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[reference]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (f *fakeStore) FindByDedupKey(ctx context.Context, dedupKey string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.byDedup[dedupKey]
	if !ok || f.bookings[ref].Status != models.BookingStatusConfirmed {
		return nil, nil
	}
	copied := *f.bookings[ref]
	return &copied, nil
}

func (f *fakeStore) FindByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.Booking{}
	for i := f.seq; i >= 1; i-- {
		b := f.bookings[database.FormatBookingReference(i)]
		if b != nil && b.CustomerID != nil && *b.CustomerID == customerID {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (f *fakeStore) Cancel(ctx context.Context, reference string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[reference]
	if !ok {
		return nil, nil
	}
	if b.Status == models.BookingStatusConfirmed {
		now := time.Now()
		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &now
	}
	copied := *b
	return &copied, nil
}

func (f *fakeStore) ClaimSubmission(ctx context.Context, dedupKey, fingerprint string) (*models.BookingSubmission, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.claims[dedupKey]; ok {
		copied := *existing
		return &copied, false, nil
	}
	claim := &models.BookingSubmission{
		DedupKey:         dedupKey,
		OfferFingerprint: fingerprint,
		State:            models.SubmissionInFlight,
		CreatedAt:        time.Now(),
	}
	f.claims[dedupKey] = claim
	copied := *claim
	return &copied, true, nil
}

func (f *fakeStore) ReleaseSubmission(ctx context.Context, dedupKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.claims[dedupKey]; ok && c.State == models.SubmissionInFlight {
		delete(f.claims, dedupKey)
	}
	return nil
}

func (f *fakeStore) MarkSubmissionAmbiguous(ctx context.Context, dedupKey, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[dedupKey]
	if !ok {
		return fmt.Errorf("submission claim not found: %s", dedupKey)
	}
	c.State = models.SubmissionAmbiguous
	c.LastError = &reason
	return nil
}

func (f *fakeStore) claim(dedupKey string) *models.BookingSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[dedupKey]
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakeAggregator struct {
	mu       sync.Mutex
	calls    int
	requests []aggregator.BookRequest
	result   *aggregator.BookResult
	err      error

	// entered is signalled and release awaited on every call when set
	entered chan struct{}
	release chan struct{}
}

func (f *fakeAggregator) Book(ctx context.Context, req aggregator.BookRequest) (*aggregator.BookResult, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	result, err := f.result, f.err
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *fakeAggregator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAggregator) lastRequest() aggregator.BookRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// ============================================================================
// HELPERS
// ============================================================================

type coordinatorFixture struct {
	coordinator *BookingCoordinator
	store       *fakeStore
	agg         *fakeAggregator
	offers      *cache.MemoryOfferCache
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupCoordinator(t *testing.T) *coordinatorFixture {
	t.Helper()
	logger := testLogger()
	store := newFakeStore()
	agg := &fakeAggregator{result: &aggregator.BookResult{OrderID: "eJzTd9f3NjIJdzUGAAp%2fAiY", PNR: "XYZ987"}}
	offers := cache.NewMemoryOfferCache(cache.Options{}, logger)

	_, err := offers.Put(context.Background(), testSession, testFingerprint, json.RawMessage(twoTravelerOffer))
	require.NoError(t, err)

	return &coordinatorFixture{
		coordinator: NewBookingCoordinator(store, offers, agg, logger),
		store:       store,
		agg:         agg,
		offers:      offers,
	}
}

func validPassengers() []models.Passenger {
	return []models.Passenger{
		{
			Name:        models.PassengerName{First: "Ana", Last: "Silva"},
			DateOfBirth: "1990-02-28",
			Gender:      "FEMALE",
			Nationality: "PT",
			Documents:   []models.TravelDocument{{Type: "PASSPORT", Number: "P1234567", Nationality: "PT"}},
		},
		{
			Name:        models.PassengerName{First: "Rui", Last: "Silva"},
			DateOfBirth: "1988-07-14",
			Gender:      "MALE",
			Nationality: "PT",
			Documents:   []models.TravelDocument{{Type: "IDENTITY_CARD", Number: "C7654321", Nationality: "PT"}},
		},
	}
}

func guestRequest() models.SubmitBookingRequest {
	return models.SubmitBookingRequest{
		Fingerprint: testFingerprint,
		Passengers:  validPassengers(),
		Contact: models.ContactInfo{
			Email:             "a@example.com",
			Phone:             "+351 912 345 678",
			ConfirmationEmail: "a@example.com",
		},
		GuestName:  "A Traveler",
		GuestEmail: "a@example.com",
	}
}

func guestScope() models.RequestScope {
	return models.RequestScope{RequestID: "req-1", SessionID: testSession}
}

func customerScope(customerID uuid.UUID) models.RequestScope {
	return models.RequestScope{
		RequestID: "req-2",
		SessionID: testSession,
		Customer:  &models.CustomerIdentity{CustomerID: customerID, Email: "customer@example.com"},
	}
}

// ============================================================================
// SUBMIT
// ============================================================================

func TestSubmit_GuestBookingIsIdempotent(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	first, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "BKG-0001", first.Booking.BookingReference)
	require.NotNil(t, first.Booking.PNR)
	assert.Equal(t, "XYZ987", *first.Booking.PNR)
	assert.Equal(t, models.BookingStatusConfirmed, first.Booking.Status)
	assert.True(t, first.Booking.IsGuest())
	assert.Equal(t, "A Traveler", *first.Booking.GuestName)
	assert.Equal(t, "355.34", first.Booking.TotalAmount)
	assert.Equal(t, "EUR", first.Booking.Currency)
	assert.Equal(t, 1, f.agg.callCount())

	second, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "BKG-0001", second.Booking.BookingReference)
	assert.Equal(t, 1, f.agg.callCount(), "resubmission must not call the aggregator")
	assert.Equal(t, 1, f.store.count())
}

func TestSubmit_SendsFullOfferAndIdempotencyKey(t *testing.T) {
	f := setupCoordinator(t)

	result, err := f.coordinator.Submit(context.Background(), guestScope(), guestRequest())
	require.NoError(t, err)

	req := f.agg.lastRequest()
	assert.Equal(t, result.Booking.DedupKey, req.IdempotencyKey)
	assert.JSONEq(t, twoTravelerOffer, string(req.Offer))
	assert.Equal(t, "A Traveler", req.GuestName)
	assert.Equal(t, "a@example.com", req.GuestEmail)
	assert.Empty(t, req.CustomerID)
	require.Len(t, req.Passengers, 2)
	assert.Equal(t, 1, req.Passengers[0].SequenceNumber)
	assert.True(t, req.Passengers[0].Primary)
	assert.False(t, req.Passengers[1].Primary)
	assert.Equal(t, "A Traveler", req.Contact.DisplayName)
}

func TestSubmit_DropsCachedOfferAfterBooking(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	_, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)

	_, err = f.offers.Get(ctx, testSession, testFingerprint)
	assert.ErrorIs(t, err, cache.ErrOfferNotFound)
}

func TestSubmit_ReorderedPassengersAreDuplicate(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	_, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)

	req := guestRequest()
	req.Passengers[0], req.Passengers[1] = req.Passengers[1], req.Passengers[0]
	req.Passengers[0].Name.First = "  RUI "
	req.Contact.Email = "A@Example.com"
	req.Contact.ConfirmationEmail = "a@example.com"

	result, err := f.coordinator.Submit(ctx, guestScope(), req)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, 1, f.agg.callCount())
}

func TestSubmit_PassengerCountMismatch(t *testing.T) {
	f := setupCoordinator(t)

	req := guestRequest()
	req.Passengers = req.Passengers[:1]

	_, err := f.coordinator.Submit(context.Background(), guestScope(), req)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "passengers", verr.Fields[0].Field)
	assert.Contains(t, verr.Fields[0].Message, "requires 2 passengers, got 1")
	assert.Equal(t, 0, f.agg.callCount())
	assert.Equal(t, 0, f.store.count())
}

func TestSubmit_FieldValidation(t *testing.T) {
	f := setupCoordinator(t)

	req := guestRequest()
	req.Passengers[1].DateOfBirth = time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	req.Passengers[1].Name.Last = " "
	req.Contact.ConfirmationEmail = "b@example.com"

	_, err := f.coordinator.Submit(context.Background(), guestScope(), req)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["passengers[1].date_of_birth"])
	assert.True(t, fields["passengers[1].name.last"])
	assert.True(t, fields["contact.confirmation_email"])
	assert.Equal(t, 0, f.agg.callCount())
}

func TestSubmit_OfferNotFound(t *testing.T) {
	f := setupCoordinator(t)

	req := guestRequest()
	req.Fingerprint = "UNKNOWN"

	_, err := f.coordinator.Submit(context.Background(), guestScope(), req)
	assert.ErrorIs(t, err, cache.ErrOfferNotFound)
	assert.Equal(t, 0, f.agg.callCount())
}

func TestSubmit_OfferFromAnotherSession(t *testing.T) {
	f := setupCoordinator(t)

	scope := guestScope()
	scope.SessionID = "session-2"

	_, err := f.coordinator.Submit(context.Background(), scope, guestRequest())
	assert.ErrorIs(t, err, cache.ErrOfferNotFound)
}

func TestSubmit_IdentityIncomplete(t *testing.T) {
	f := setupCoordinator(t)

	req := guestRequest()
	req.GuestName = ""
	req.Contact.DisplayName = ""

	_, err := f.coordinator.Submit(context.Background(), guestScope(), req)
	assert.ErrorIs(t, err, ErrIdentityIncomplete)
	assert.Equal(t, 0, f.agg.callCount())
}

func TestSubmit_AuthenticatedCustomer(t *testing.T) {
	f := setupCoordinator(t)
	customerID := uuid.New()

	req := guestRequest()
	req.GuestName = ""
	req.GuestEmail = ""
	req.Contact = models.ContactInfo{}

	result, err := f.coordinator.Submit(context.Background(), customerScope(customerID), req)
	require.NoError(t, err)

	require.NotNil(t, result.Booking.CustomerID)
	assert.Equal(t, customerID, *result.Booking.CustomerID)
	assert.Nil(t, result.Booking.GuestName)
	assert.Equal(t, "customer@example.com", result.Booking.Contact.Email)
	assert.Equal(t, customerID.String(), f.agg.lastRequest().CustomerID)
	assert.Empty(t, f.agg.lastRequest().GuestEmail)
}

func TestSubmit_ExternalRejectionIsNotPersisted(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.agg.err = &aggregator.BookingError{
		Reason:  "INVALID_TRAVELER",
		Message: "passport number rejected by carrier",
		Status:  400,
	}

	_, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())

	var extErr *ExternalBookingError
	require.True(t, errors.As(err, &extErr))
	assert.False(t, extErr.Ambiguous)
	assert.Equal(t, "INVALID_TRAVELER", extErr.Reason)
	assert.Equal(t, "passport number rejected by carrier", extErr.Message)
	assert.Equal(t, 0, f.store.count())

	// The claim was released so the customer may retry
	f.agg.err = nil
	result, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 2, f.agg.callCount())
}

func TestSubmit_AmbiguousFailureBlocksResubmission(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.agg.err = &aggregator.BookingError{
		Reason:    aggregator.ReasonTimeout,
		Message:   "the booking provider did not answer in time",
		Ambiguous: true,
	}

	_, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())

	var extErr *ExternalBookingError
	require.True(t, errors.As(err, &extErr))
	assert.True(t, extErr.Ambiguous)
	assert.Equal(t, 0, f.store.count())

	f.agg.err = nil
	_, err = f.coordinator.Submit(ctx, guestScope(), guestRequest())
	assert.ErrorIs(t, err, ErrOutcomeUnknown)
	assert.Equal(t, 1, f.agg.callCount(), "ambiguous failures are never retried")
}

func TestSubmit_UnknownAggregatorErrorIsAmbiguous(t *testing.T) {
	f := setupCoordinator(t)
	f.agg.err = errors.New("boom")

	_, err := f.coordinator.Submit(context.Background(), guestScope(), guestRequest())

	var extErr *ExternalBookingError
	require.True(t, errors.As(err, &extErr))
	assert.True(t, extErr.Ambiguous)
}

func TestSubmit_ConcurrentDuplicateMakesOneCall(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.agg.entered = make(chan struct{})
	f.agg.release = make(chan struct{})

	type outcome struct {
		result *SubmitResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
		done <- outcome{result, err}
	}()

	<-f.agg.entered

	_, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(f.agg.release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, "BKG-0001", first.result.Booking.BookingReference)

	third, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
	assert.Equal(t, 1, f.agg.callCount())
	assert.Equal(t, 1, f.store.count())
}

func TestSubmit_PersistFailureFlagsSubmission(t *testing.T) {
	f := setupCoordinator(t)
	f.store.saveErr = errors.New("connection reset")

	req := guestRequest()
	_, err := f.coordinator.Submit(context.Background(), guestScope(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save booking")

	key, err := DedupKey(testFingerprint, "a@example.com", normalizePassengers(req.Passengers))
	require.NoError(t, err)
	claim := f.store.claim(key)
	require.NotNil(t, claim)
	assert.Equal(t, models.SubmissionAmbiguous, claim.State)
	assert.Contains(t, *claim.LastError, "XYZ987")
}

// ============================================================================
// READ & CANCEL
// ============================================================================

func TestGet_Ownership(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	result, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	ref := result.Booking.BookingReference

	booking, err := f.coordinator.Get(ctx, guestScope(), ref, "A@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, ref, booking.BookingReference)

	_, err = f.coordinator.Get(ctx, guestScope(), ref, "other@example.com")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.coordinator.Get(ctx, guestScope(), ref, "")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.coordinator.Get(ctx, guestScope(), "BKG-9999", "a@example.com")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestGet_CustomerBookingHiddenFromOthers(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	owner := uuid.New()

	result, err := f.coordinator.Submit(ctx, customerScope(owner), guestRequest())
	require.NoError(t, err)
	ref := result.Booking.BookingReference

	_, err = f.coordinator.Get(ctx, customerScope(owner), ref, "")
	assert.NoError(t, err)

	_, err = f.coordinator.Get(ctx, customerScope(uuid.New()), ref, "")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.coordinator.Get(ctx, guestScope(), ref, "a@example.com")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestList(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	customerID := uuid.New()

	_, err := f.coordinator.Submit(ctx, customerScope(customerID), guestRequest())
	require.NoError(t, err)

	bookings, err := f.coordinator.List(ctx, customerScope(customerID), 20, 0)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "BKG-0001", bookings[0].BookingReference)

	_, err = f.coordinator.List(ctx, guestScope(), 20, 0)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestCancel(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	result, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	ref := result.Booking.BookingReference

	cancelled, err := f.coordinator.Cancel(ctx, guestScope(), ref, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	again, err := f.coordinator.Cancel(ctx, guestScope(), ref, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, again.Status)
	assert.Equal(t, *cancelled.CancelledAt, *again.CancelledAt)

	_, err = f.coordinator.Cancel(ctx, guestScope(), ref, "other@example.com")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestSubmit_AfterCancellationBooksAgain(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	first, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	_, err = f.coordinator.Cancel(ctx, guestScope(), first.Booking.BookingReference, "a@example.com")
	require.NoError(t, err)

	_, err = f.offers.Put(ctx, testSession, testFingerprint, json.RawMessage(twoTravelerOffer))
	require.NoError(t, err)

	second, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.Equal(t, models.BookingStatusConfirmed, second.Booking.Status)
	assert.Equal(t, "BKG-0002", second.Booking.BookingReference)
	assert.Equal(t, first.Booking.DedupKey, second.Booking.DedupKey)
	assert.Equal(t, 2, f.agg.callCount())

	third, err := f.coordinator.Submit(ctx, guestScope(), guestRequest())
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
	assert.Equal(t, "BKG-0002", third.Booking.BookingReference)
	assert.Equal(t, 2, f.agg.callCount())
}

func TestSubmit_MalformedGuestEmail(t *testing.T) {
	f := setupCoordinator(t)

	req := guestRequest()
	req.GuestEmail = "not an email"

	_, err := f.coordinator.Submit(context.Background(), guestScope(), req)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "guest_email", verr.Fields[0].Field)
	assert.Equal(t, 0, f.agg.callCount())
	assert.Equal(t, 0, f.store.count())
}
