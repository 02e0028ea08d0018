package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/middleware"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/internal/services"
	"github.com/skyroute/booking-backend/internal/utils"
)

// BookingAuditor records booking lifecycle events; implemented by services.AuditService
type BookingAuditor interface {
	LogSubmission(ctx context.Context, meta services.AuditMeta, fingerprint string, result *services.SubmitResult, err error) error
	LogCancellation(ctx context.Context, meta services.AuditMeta, booking *models.Booking) error
}

func auditMeta(c *gin.Context) services.AuditMeta {
	scope := middleware.GetRequestScope(c)
	meta := services.AuditMeta{
		RequestID: scope.RequestID,
		SessionID: scope.SessionID,
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
	if scope.Customer != nil {
		customerID := scope.Customer.CustomerID
		meta.CustomerID = &customerID
	}
	return meta
}

// logAuditError logs audit failures without failing the request
func (h *BookingHandler) logAuditError(operation string, err error) {
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err.Error(),
		}).Error("AUDIT ERROR")
	}
}

func (h *BookingHandler) safeLogSubmission(c *gin.Context, fingerprint string, result *services.SubmitResult, err error) {
	if h.audit == nil {
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	h.logAuditError("LogSubmission", h.audit.LogSubmission(ctx, auditMeta(c), fingerprint, result, err))
}

func (h *BookingHandler) safeLogCancellation(c *gin.Context, booking *models.Booking) {
	if h.audit == nil {
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	h.logAuditError("LogCancellation", h.audit.LogCancellation(ctx, auditMeta(c), booking))
}
