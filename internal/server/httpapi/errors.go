package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/gin-gonic/gin"
)

// Locations of a request field that failed validation.
const (
	inBody   = "body"
	inQuery  = "query"
	inCookie = "cookie"
	inHeader = "header"
	inParams = "params"
)

var errGrantNotAllowed = errors.New("token grant not allowed here")

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Message string        `json:"message"`
	Data    gin.H         `json:"data"`
	Errors  []ErrorDetail `json:"errors"`
}

type ErrorDetail struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Data    *FieldPath `json:"data,omitempty"`
}

// FieldPath points at the offending request field.
type FieldPath struct {
	Location string `json:"location"`
	Path     string `json:"path"`
}

type errorMapping struct {
	err    error
	code   string
	status int
}

// errorTable maps service sentinels onto stable codes. Anything not listed
// is an internal error.
var errorTable = []errorMapping{
	{common.ErrorUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{errGrantNotAllowed, "FORBIDDEN", http.StatusForbidden},
	{common.ErrInvalidToken, "INVALID_TOKEN", http.StatusUnauthorized},
	{common.ErrTokenExpired, "TOKEN_EXPIRED", http.StatusUnauthorized},
	{common.ErrUnsupportedGrantType, "INVALID_GRANT_TYPE", http.StatusBadRequest},

	{common.ErrAccountNotFound, "USER_NOT_FOUND", http.StatusNotFound},
	{common.ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusBadRequest},
	{common.ErrAccountBanned, "ACCOUNT_BANNED", http.StatusBadRequest},
	{common.ErrEmailNotVerified, "EMAIL_NOT_VERIFIED", http.StatusBadRequest},
	{common.ErrEmailAlreadyTaken, "EMAIL_ALREADY_TAKEN", http.StatusBadRequest},
	{common.ErrUsernameAlreadyTaken, "USERNAME_ALREADY_TAKEN", http.StatusBadRequest},
	{common.ErrEmailAlreadyVerified, "EMAIL_ALREADY_VERIFIED", http.StatusBadRequest},
	{common.ErrInvalidVerification, "INVALID_VERIFICATION_TOKEN", http.StatusBadRequest},
	{common.ErrVerificationExpired, "TOKEN_EXPIRED", http.StatusForbidden},
	{common.ErrInvalidEmail, "INVALID_EMAIL", http.StatusBadRequest},
	{common.ErrInvalidUsername, "INVALID_USERNAME", http.StatusBadRequest},

	{common.ErrEmailMFADisabled, "MFA_EMAIL_DISABLED", http.StatusBadRequest},
	{common.ErrTOTPMFADisabled, "MFA_TOTP_DISABLED", http.StatusBadRequest},
	{common.ErrInvalidCode, "INVALID_CODE", http.StatusForbidden},
	{common.ErrCodeExpired, "CODE_EXPIRED", http.StatusForbidden},
	{common.ErrTOTPAlreadyEnabled, "MFA_TOTP_ALREADY_ENABLED", http.StatusBadRequest},
	{common.ErrTOTPAlreadyVerified, "MFA_TOTP_ALREADY_VERIFIED", http.StatusBadRequest},
	{common.ErrTOTPNotEnrolled, "TOTP_NOT_ENROLLED", http.StatusBadRequest},
	{common.ErrTOTPAlreadyDisabled, "TOTP_ALREADY_DISABLED", http.StatusBadRequest},
	{common.ErrEmailMFAAlreadyEnabled, "MFA_EMAIL_ALREADY_ENABLED", http.StatusBadRequest},
	{common.ErrEmailMFAAlreadyDisabled, "MFA_EMAIL_ALREADY_DISABLED", http.StatusBadRequest},
	{common.ErrLastMFAMethod, "MFA_CANNOT_BE_COMPLETELY_DISABLED", http.StatusBadRequest},
	{common.ErrUnsupportedMFAMethod, "UNSUPPORTED_MFA_METHOD", http.StatusBadRequest},
	{common.ErrTooManyMFAAttempts, "MFA_ATTEMPTS_EXCEEDED", http.StatusTooManyRequests},

	{common.ErrInvalidRefreshToken, "INVALID_REFRESH_TOKEN", http.StatusBadRequest},
	{common.ErrSessionNotFound, "SESSION_NOT_FOUND", http.StatusNotFound},
	{common.ErrNoSessionsFound, "NO_SESSIONS_FOUND", http.StatusNotFound},

	{common.ErrInvalidAuthorizationCode, "INVALID_AUTHORIZATION_CODE", http.StatusBadRequest},
	{common.ErrClientNotFound, "CLIENT_NOT_FOUND", http.StatusNotFound},
	{common.ErrInvalidRedirectURL, "INVALID_REDIRECT_URL", http.StatusBadRequest},
	{common.ErrInvalidScopes, "INVALID_SCOPES", http.StatusBadRequest},
	{common.ErrInvalidClientCredentials, "INVALID_CLIENT_CREDENTIALS", http.StatusBadRequest},
	{common.ErrNoScopesSelected, "NO_CLIENT_SCOPES_SELECTED", http.StatusBadRequest},
	{common.ErrConnectionNotFound, "CONNECTION_NOT_FOUND", http.StatusNotFound},
	{common.ErrConnectionRevoked, "CONNECTION_ALREADY_REVOKED", http.StatusNotFound},
	{common.ErrInsufficientScopes, "INSUFFICIENT_SCOPES", http.StatusUnauthorized},

	{common.ErrRateLimited, "TOO_MANY_REQUESTS", http.StatusTooManyRequests},
}

func lookupError(err error) (errorMapping, bool) {
	for _, mapping := range errorTable {
		if errors.Is(err, mapping.err) {
			return mapping, true
		}
	}
	return errorMapping{}, false
}

// abortWithError writes the mapped error. Unmapped errors are logged and
// reported as INTERNAL_ERROR without detail.
func abortWithError(c *gin.Context, logger logging.Logger, err error) {
	mapping, ok := lookupError(err)
	if !ok {
		logger.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{
			Message: "internal error",
			Data:    gin.H{},
			Errors:  []ErrorDetail{{Code: "INTERNAL_ERROR", Message: "internal error"}},
		})
		return
	}
	msg := mapping.err.Error()
	c.AbortWithStatusJSON(mapping.status, ErrorBody{
		Message: msg,
		Data:    gin.H{},
		Errors:  []ErrorDetail{{Code: mapping.code, Message: msg}},
	})
}

// fieldError is a single validation failure.
type fieldError struct {
	code     string
	message  string
	location string
	path     string
}

func abortWithValidation(c *gin.Context, errs ...fieldError) {
	details := make([]ErrorDetail, len(errs))
	for i, e := range errs {
		details[i] = ErrorDetail{
			Code:    e.code,
			Message: e.message,
			Data:    &FieldPath{Location: e.location, Path: e.path},
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{
		Message: "validation failed",
		Data:    gin.H{},
		Errors:  details,
	})
}

func required(code, location, path string) fieldError {
	return fieldError{code: code, message: path + " is required", location: location, path: path}
}

func invalid(code, location, path string) fieldError {
	return fieldError{code: code, message: path + " is invalid", location: location, path: path}
}

func badBody() fieldError {
	return fieldError{code: "INVALID_BODY", message: "request body is not valid JSON", location: inBody, path: ""}
}
