package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/models"
	"github.com/skyroute/booking-backend/pkg/jwt"
)

const (
	// RequestScopeKey is the key used to store the request scope in Gin context
	RequestScopeKey = "request_scope"

	SessionHeader   = "X-Session-ID"
	SessionCookie   = "session_id"
	RequestIDHeader = "X-Request-ID"

	sessionCookieMaxAge = 24 * 60 * 60
	maxSessionIDLength  = 128
)

// SessionMiddleware builds the request scope: request id plus browsing session id.
// A session id is minted and returned in both the header and a cookie when the
// client has none.
func SessionMiddleware(secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxSessionIDLength {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sessionID == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				sessionID = strings.TrimSpace(cookie)
			}
		}
		if sessionID == "" || len(sessionID) > maxSessionIDLength {
			sessionID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sessionID, sessionCookieMaxAge, "/", "", secureCookies, true)
		}
		c.Header(SessionHeader, sessionID)

		c.Set(RequestScopeKey, models.RequestScope{
			RequestID: requestID,
			SessionID: sessionID,
		})
		c.Next()
	}
}

// OptionalAuth attaches the customer identity when a bearer token is presented.
// Requests without an Authorization header continue as guests; a malformed,
// invalid or expired token is rejected.
func OptionalAuth(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		log := logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		})

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			log.Warn("AUTH FAILED: Invalid auth format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid authorization header format. Expected: Bearer <token>",
				"code":    "INVALID_AUTH_FORMAT",
			})
			return
		}

		claims, err := jwtService.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				log.WithError(err).Warn("AUTH FAILED: Token expired")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "token_expired",
					"message": "Access token has expired. Please sign in again.",
					"code":    "TOKEN_EXPIRED",
				})
				return
			}
			log.WithError(err).Warn("AUTH FAILED: Invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Invalid access token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		scope := GetRequestScope(c)
		scope.Customer = &models.CustomerIdentity{
			CustomerID: claims.CustomerID,
			Email:      claims.Email,
		}
		c.Set(RequestScopeKey, scope)
		c.Next()
	}
}

// RequireCustomer rejects requests without an authenticated customer
func RequireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetRequestScope(c).IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
				"code":    "MISSING_AUTH_HEADER",
			})
			return
		}
		c.Next()
	}
}

// GetRequestScope retrieves the request scope from Gin context. Outside
// SessionMiddleware it returns an empty scope.
func GetRequestScope(c *gin.Context) models.RequestScope {
	value, exists := c.Get(RequestScopeKey)
	if !exists {
		return models.RequestScope{}
	}
	scope, ok := value.(models.RequestScope)
	if !ok {
		return models.RequestScope{}
	}
	return scope
}
