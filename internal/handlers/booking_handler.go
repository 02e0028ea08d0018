package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/middleware"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/internal/services"
)

// BookingService is implemented by services.BookingCoordinator
type BookingService interface {
	Submit(ctx context.Context, scope models.RequestScope, req models.SubmitBookingRequest) (*services.SubmitResult, error)
	Get(ctx context.Context, scope models.RequestScope, reference, guestEmail string) (*models.Booking, error)
	List(ctx context.Context, scope models.RequestScope, limit, offset int) ([]models.Booking, error)
	Cancel(ctx context.Context, scope models.RequestScope, reference, guestEmail string) (*models.Booking, error)
}

// BookingHandler handles booking submission and retrieval endpoints
type BookingHandler struct {
	bookings BookingService
	audit    BookingAuditor
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler. audit may be nil.
func NewBookingHandler(bookings BookingService, audit BookingAuditor, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		audit:    audit,
		logger:   logger,
	}
}

// ============================================================================
// SUBMIT - POST /api/v1/bookings
// ============================================================================

// Submit books a cached offer. A repeated identical submission returns the
// existing booking with 200 instead of 201.
func (h *BookingHandler) Submit(c *gin.Context) {
	var req models.SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.bookings.Submit(c.Request.Context(), middleware.GetRequestScope(c), req)
	h.safeLogSubmission(c, req.Fingerprint, result, err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, models.SubmitBookingResponse{
		Duplicate: result.Duplicate,
		Booking:   result.Booking.ToResponse(),
	})
}

// ============================================================================
// READ - GET /api/v1/bookings, GET /api/v1/bookings/:reference
// ============================================================================

// List returns the authenticated customer's bookings, newest first
func (h *BookingHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		badRequest(c, "limit must be between 1 and 100")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "offset must be zero or positive")
		return
	}

	bookings, err := h.bookings.List(c.Request.Context(), middleware.GetRequestScope(c), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	responses := make([]models.BookingResponse, 0, len(bookings))
	for i := range bookings {
		responses = append(responses, bookings[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings": responses,
		"count":    len(responses),
		"limit":    limit,
		"offset":   offset,
	})
}

// Get returns one booking. Guests pass the booking email as ?email=
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.bookings.Get(c.Request.Context(), middleware.GetRequestScope(c), c.Param("reference"), c.Query("email"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking.ToResponse())
}

// ============================================================================
// CANCEL - POST /api/v1/bookings/:reference/cancel
// ============================================================================

// Cancel moves a confirmed booking to cancelled
func (h *BookingHandler) Cancel(c *gin.Context) {
	booking, err := h.bookings.Cancel(c.Request.Context(), middleware.GetRequestScope(c), c.Param("reference"), c.Query("email"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if booking.Status == models.BookingStatusCancelled {
		h.safeLogCancellation(c, booking)
	}
	c.JSON(http.StatusOK, booking.ToResponse())
}
