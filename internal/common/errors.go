// Package common defines shared constants and sentinel errors used across
// the service layers of idkeeper. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Identity errors.
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountBanned        = errors.New("account banned")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrEmailAlreadyTaken    = errors.New("email already taken")
	ErrUsernameAlreadyTaken = errors.New("username already taken")
	ErrEmailAlreadyVerified = errors.New("email already verified")
	ErrInvalidVerification  = errors.New("invalid verification token")
	ErrVerificationExpired  = errors.New("verification token expired")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidUsername      = errors.New("invalid username")

	// MFA errors.
	ErrInvalidCode             = errors.New("invalid code")
	ErrCodeExpired             = errors.New("code expired")
	ErrLastMFAMethod           = errors.New("mfa cannot be completely disabled")
	ErrEmailMFADisabled        = errors.New("mfa email disabled")
	ErrTOTPMFADisabled         = errors.New("mfa totp disabled")
	ErrTOTPAlreadyEnabled      = errors.New("totp already enabled")
	ErrTOTPAlreadyVerified     = errors.New("totp already verified")
	ErrTOTPNotEnrolled         = errors.New("totp not enrolled")
	ErrTOTPAlreadyDisabled     = errors.New("totp already disabled")
	ErrEmailMFAAlreadyEnabled  = errors.New("email mfa already enabled")
	ErrEmailMFAAlreadyDisabled = errors.New("email mfa already disabled")
	ErrUnsupportedMFAMethod    = errors.New("unsupported mfa method")

	// Ledger errors.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNoSessionsFound     = errors.New("no sessions found")

	// OAuth2 errors.
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrClientNotFound           = errors.New("client not found")
	ErrInvalidRedirectURL       = errors.New("invalid redirect url")
	ErrInvalidScopes            = errors.New("invalid scopes")
	ErrInvalidClientCredentials = errors.New("invalid client credentials")
	ErrNoScopesSelected         = errors.New("no client scopes selected")
	ErrConnectionNotFound       = errors.New("connection not found")
	ErrConnectionRevoked        = errors.New("connection already revoked")
	ErrInsufficientScopes       = errors.New("insufficient scopes")

	// Grant errors.
	ErrUnsupportedGrantType = errors.New("unsupported grant type")

	// Throttling errors.
	ErrRateLimited        = errors.New("rate limited")
	ErrTooManyMFAAttempts = errors.New("too many mfa attempts")
)
