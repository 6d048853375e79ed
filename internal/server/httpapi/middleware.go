package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

const accessClaimsKey = "accessClaims"

// RequestLogger logs one line per request once it has been served.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if status >= 500 {
			logger.Warn(c.Request.Context(), "http request", args...)
			return
		}
		logger.Info(c.Request.Context(), "http request", args...)
	}
}

// Authenticate requires a valid bearer access token and stores its claims.
func Authenticate(issuer *auth.Issuer, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, logger, common.ErrorUnauthorized)
			return
		}
		claims, err := issuer.ParseAccess(token)
		if err != nil {
			abortWithError(c, logger, err)
			return
		}
		c.Set(accessClaimsKey, claims)
		c.Next()
	}
}

// RequirePasswordGrant admits only tokens from an account's own session.
func RequirePasswordGrant(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := AccessClaims(c)
		if !ok {
			abortWithError(c, logger, common.ErrorUnauthorized)
			return
		}
		if claims.GrantType != models.GrantPassword {
			abortWithError(c, logger, errGrantNotAllowed)
			return
		}
		c.Next()
	}
}

// RequireScopes gates the route behind the scope gate.
func RequireScopes(gate ScopeChecker, logger logging.Logger, scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := AccessClaims(c)
		if !ok {
			abortWithError(c, logger, common.ErrorUnauthorized)
			return
		}
		if err := gate.RequireScopes(c.Request.Context(), claims, scopes); err != nil {
			abortWithError(c, logger, err)
			return
		}
		c.Next()
	}
}

// RateLimit throttles by client address. The request goes through when the
// limiter itself is failing.
func RateLimit(limiter RateLimiter, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		err := limiter.Allow(c.Request.Context(), c.ClientIP())
		switch {
		case err == nil:
		case errors.Is(err, common.ErrRateLimited):
			abortWithError(c, logger, err)
			return
		default:
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
		}
		c.Next()
	}
}

// AccessClaims returns the claims stored by Authenticate.
func AccessClaims(c *gin.Context) (*auth.AccessClaims, bool) {
	v, ok := c.Get(accessClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.AccessClaims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
