// Package httpapi is the gin transport of the identity server. Handlers
// validate input, call into services and translate sentinel errors through a
// single code table.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type Identity interface {
	SignUp(ctx context.Context, email, username, password string) (*models.Account, error)
	VerifyEmail(ctx context.Context, email, token string) error
	ResendVerification(ctx context.Context, email string) error
	Account(ctx context.Context, accountID string) (*models.Account, error)
}

type MFA interface {
	Status(ctx context.Context, accountID string) (*models.MFAStatus, error)
	BeginTOTPEnrollment(ctx context.Context, accountID, label string) (*services.TOTPEnrollment, error)
	VerifyTOTPEnrollment(ctx context.Context, accountID, code string) error
	DisableTOTP(ctx context.Context, accountID, code string) error
	EnableEmail(ctx context.Context, accountID, code string) error
	DisableEmail(ctx context.Context, accountID, code string) error
	SendEmailCode(ctx context.Context, account *models.Account) error
}

type Grants interface {
	Dispatch(ctx context.Context, req *services.TokenRequest) (*services.GrantResult, error)
	Revoke(ctx context.Context, refreshToken string) error
}

type Sessions interface {
	SignOut(ctx context.Context, accountID, sessionID string) error
	SignOutAll(ctx context.Context, accountID string, method models.MFAMethod, code string) error
	Sessions(ctx context.Context, accountID string) ([]models.Session, error)
}

type OAuth2 interface {
	IssueAuthorizationCode(ctx context.Context, accountID, clientID, redirectURL string, scopes []string) (*services.CodeGrant, error)
	DeleteConnection(ctx context.Context, accountID string, connectionID int64) error
}

type ScopeChecker interface {
	RequireScopes(ctx context.Context, claims *auth.AccessClaims, required []string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// Deps bundles what the router needs. Limiter may be nil.
type Deps struct {
	Identity Identity
	MFA      MFA
	Grants   Grants
	Sessions Sessions
	OAuth2   OAuth2
	Scopes   ScopeChecker
	Limiter  RateLimiter
	Issuer   *auth.Issuer
}

type Handler struct {
	identity Identity
	mfa      MFA
	grants   Grants
	sessions Sessions
	oauth2   OAuth2
	issuer   *auth.Issuer

	cookiePath   string
	cookieSecure bool
	logger       logging.Logger
}

func NewHandler(d Deps, cfg *config.Config, logger logging.Logger) *Handler {
	return &Handler{
		identity:     d.Identity,
		mfa:          d.MFA,
		grants:       d.Grants,
		sessions:     d.Sessions,
		oauth2:       d.OAuth2,
		issuer:       d.Issuer,
		cookiePath:   cfg.RefreshCookiePath,
		cookieSecure: cfg.CookieSecure,
		logger:       logger.With("module", "httpapi"),
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	abortWithError(c, h.logger, err)
}

// setRefreshCookie hands a session refresh token to the browser, visible
// only to the refresh endpoint.
func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    token,
		Path:     h.cookiePath,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    "",
		Path:     h.cookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
