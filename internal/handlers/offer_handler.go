package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/cache"
	"github.com/skyroute/booking-backend/internal/middleware"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/internal/services"
	"github.com/skyroute/booking-backend/pkg/aggregator"
	"github.com/skyroute/booking-backend/pkg/fingerprint"
)

// OfferSearcher queries the aggregator for offers
type OfferSearcher interface {
	Search(ctx context.Context, params aggregator.SearchParams) (*aggregator.SearchResult, error)
}

// OfferHandler serves search results and the session offer cache to the booking page
type OfferHandler struct {
	searcher OfferSearcher
	offers   cache.OfferCache
	logger   *logrus.Logger
	now      func() time.Time
}

// NewOfferHandler creates a new OfferHandler
func NewOfferHandler(searcher OfferSearcher, offers cache.OfferCache, logger *logrus.Logger) *OfferHandler {
	return &OfferHandler{
		searcher: searcher,
		offers:   offers,
		logger:   logger,
		now:      time.Now,
	}
}

// ============================================================================
// SEARCH - GET /api/v1/offers/search
// ============================================================================

// Search forwards the query to the aggregator, fingerprints every offer and caches it
// for the caller's session. Offers that cannot be fingerprinted are skipped.
func (h *OfferHandler) Search(c *gin.Context) {
	var req models.OfferSearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid search: "+err.Error())
		return
	}

	scope := middleware.GetRequestScope(c)
	log := h.logger.WithFields(logrus.Fields{
		"request_id": scope.RequestID,
		"session_id": scope.SessionID,
		"route":      strings.ToUpper(req.Origin) + "-" + strings.ToUpper(req.Destination),
	})

	result, err := h.searcher.Search(c.Request.Context(), aggregator.SearchParams{
		Origin:        strings.ToUpper(req.Origin),
		Destination:   strings.ToUpper(req.Destination),
		DepartureDate: req.DepartureDate,
		ReturnDate:    req.ReturnDate,
		Adults:        req.Adults,
		Children:      req.Children,
		Max:           req.Max,
	})
	if err != nil {
		log.WithError(err).Error("Offer search failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "search_failed",
			"message": "Flight search is temporarily unavailable",
			"code":    "SEARCH_FAILED",
		})
		return
	}

	response := models.OfferSearchResponse{
		Offers:       make([]models.FingerprintedOffer, 0, len(result.Offers)),
		Dictionaries: result.Dictionaries,
	}
	for i, raw := range result.Offers {
		stored, err := h.storeSearchOffer(c.Request.Context(), log, scope.SessionID, raw)
		if err != nil {
			if !isSkippable(err) {
				respondError(c, h.logger, err)
				return
			}
			log.WithFields(logrus.Fields{"index": i, "error": err.Error()}).Warn("Skipping offer")
			response.Skipped++
			continue
		}
		response.Offers = append(response.Offers, models.FingerprintedOffer{
			Fingerprint: stored.Fingerprint,
			ExpiresAt:   stored.ExpiresAt,
			Offer:       stored.Raw,
		})
	}

	log.WithFields(logrus.Fields{
		"offers":  len(response.Offers),
		"skipped": response.Skipped,
	}).Info("Offer search completed")

	c.JSON(http.StatusOK, response)
}

// storeSearchOffer caches one search result. An offer already cached under the same
// fingerprint keeps its first payload; a re-search only renumbers non-commercial fields.
func (h *OfferHandler) storeSearchOffer(ctx context.Context, log *logrus.Entry, sessionID string, raw json.RawMessage) (*models.CachedOffer, error) {
	offer, err := models.ParseOffer(raw)
	if err != nil {
		return nil, errors.Join(cache.ErrInvalidPayload, err)
	}
	fp, err := fingerprint.FromOffer(*offer)
	if err != nil {
		return nil, err
	}

	stored, err := h.offers.Put(ctx, sessionID, fp, raw)
	if !errors.Is(err, cache.ErrFingerprintConflict) {
		return stored, err
	}

	existing, getErr := h.offers.Get(ctx, sessionID, fp)
	if getErr != nil {
		return nil, errors.Join(err, getErr)
	}
	log.WithField("fingerprint", fp).Warn("Offer already cached with a different payload, returning cached copy")
	return existing, nil
}

// isSkippable reports errors caused by one bad offer rather than the cache itself
func isSkippable(err error) bool {
	var encErr *fingerprint.EncodingError
	return errors.Is(err, cache.ErrInvalidPayload) ||
		errors.Is(err, fingerprint.ErrMalformedOffer) ||
		errors.Is(err, cache.ErrFingerprintConflict) ||
		errors.As(err, &encErr)
}

// ============================================================================
// STORE - PUT /api/v1/offers/:fingerprint
// ============================================================================

// StoreOffer caches an offer the client already holds. The fingerprint is
// recomputed and must match the one in the URL.
func (h *OfferHandler) StoreOffer(c *gin.Context) {
	fp := c.Param("fingerprint")

	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "could not read request body")
		return
	}

	offer, err := models.ParseOffer(raw)
	if err != nil {
		badRequest(c, "offer must be a JSON object: "+err.Error())
		return
	}
	computed, err := fingerprint.FromOffer(*offer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if computed != fp {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "fingerprint_mismatch",
			"message":  "Fingerprint does not match the offer",
			"code":     "FINGERPRINT_MISMATCH",
			"expected": computed,
		})
		return
	}

	scope := middleware.GetRequestScope(c)
	stored, err := h.offers.Put(c.Request.Context(), scope.SessionID, fp, raw)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, h.loadResponse(stored))
}

// ============================================================================
// LOAD - GET /api/v1/offers/:fingerprint
// ============================================================================

// LoadOffer returns the cached offer for the booking page
func (h *OfferHandler) LoadOffer(c *gin.Context) {
	scope := middleware.GetRequestScope(c)
	stored, err := h.offers.Get(c.Request.Context(), scope.SessionID, c.Param("fingerprint"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.loadResponse(stored))
}

// PassengerForm returns the passenger shells the booking page must fill
func (h *OfferHandler) PassengerForm(c *gin.Context) {
	scope := middleware.GetRequestScope(c)
	stored, err := h.offers.Get(c.Request.Context(), scope.SessionID, c.Param("fingerprint"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	shells, err := services.DerivePassengerForm(stored.Offer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fingerprint":         stored.Fingerprint,
		"required_passengers": len(shells),
		"passengers":          shells,
		"expires_at":          stored.ExpiresAt,
	})
}

func (h *OfferHandler) loadResponse(stored *models.CachedOffer) models.LoadOfferResponse {
	ttl := int(stored.ExpiresAt.Sub(h.now()).Seconds())
	if ttl < 0 {
		ttl = 0
	}
	return models.LoadOfferResponse{
		Fingerprint: stored.Fingerprint,
		Offer:       stored.Raw,
		StoredAt:    stored.StoredAt,
		ExpiresAt:   stored.ExpiresAt,
		TTLSeconds:  ttl,
	}
}
