package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/cache"
	"github.com/skyroute/booking-backend/internal/services"
	"github.com/skyroute/booking-backend/pkg/fingerprint"
)

// respondError maps domain errors to JSON error responses: {error, message, code}
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var verr *services.ValidationError
	var extErr *services.ExternalBookingError

	switch {
	case errors.Is(err, cache.ErrOfferExpired):
		c.JSON(http.StatusGone, gin.H{
			"error":          "offer_expired",
			"message":        "This offer has expired. Please search again.",
			"code":           "OFFER_EXPIRED",
			"restart_search": true,
		})
	case errors.Is(err, cache.ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":          "offer_not_found",
			"message":        "Offer not found for this session. Please search again.",
			"code":           "OFFER_NOT_FOUND",
			"restart_search": true,
		})
	case errors.Is(err, cache.ErrFingerprintConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "fingerprint_conflict",
			"message": "A different offer is already stored under this fingerprint",
			"code":    "FINGERPRINT_CONFLICT",
		})
	case errors.Is(err, cache.ErrInvalidPayload), errors.Is(err, fingerprint.ErrMalformedOffer):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_offer",
			"message": err.Error(),
			"code":    "INVALID_OFFER",
		})
	case errors.Is(err, services.ErrNoTravelers):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_offer",
			"message": "Offer has no travelers",
			"code":    "INVALID_OFFER",
		})
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_failed",
			"message": "Please correct the highlighted fields",
			"code":    "VALIDATION_FAILED",
			"fields":  verr.Fields,
		})
	case errors.Is(err, services.ErrIdentityIncomplete):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "identity_incomplete",
			"message": "Guest bookings require a name and an email address",
			"code":    "IDENTITY_INCOMPLETE",
		})
	case errors.Is(err, services.ErrSubmissionInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "submission_in_progress",
			"message": "This booking is already being processed",
			"code":    "SUBMISSION_IN_PROGRESS",
		})
	case errors.Is(err, services.ErrOutcomeUnknown):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "contact_support",
			"message": "We could not confirm an earlier attempt of this booking. Please contact support before trying again.",
			"code":    "CONTACT_SUPPORT",
		})
	case errors.As(err, &extErr) && extErr.Ambiguous:
		logger.WithError(err).Error("Booking outcome unknown")
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "contact_support",
			"message": "The booking provider did not confirm your booking. Please contact support before trying again.",
			"code":    "CONTACT_SUPPORT",
			"reason":  extErr.Reason,
		})
	case errors.As(err, &extErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "external_booking_failed",
			"message": extErr.Message,
			"code":    "EXTERNAL_BOOKING_FAILED",
			"reason":  extErr.Reason,
		})
	case errors.Is(err, services.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Booking not found",
			"code":    "BOOKING_NOT_FOUND",
		})
	case errors.Is(err, services.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authorization header is required",
			"code":    "MISSING_AUTH_HEADER",
		})
	default:
		logger.WithError(err).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
			"code":    "INTERNAL_ERROR",
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
		"code":    "INVALID_REQUEST",
	})
}
