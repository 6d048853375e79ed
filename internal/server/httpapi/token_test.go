package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_GrantTypeValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, request{method: http.MethodPost, path: "/auth/token"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "GRANT_TYPE_REQUIRED", body.Errors[0].Code)
	assert.Equal(t, &FieldPath{Location: "query", Path: "grant_type"}, body.Errors[0].Data)

	w = ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=implicit"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_GRANT_TYPE", errorCode(t, w))
	assert.Nil(t, ts.grants.last)
}

func TestToken_PasswordGrant(t *testing.T) {
	ts := newTestServer(t)

	t.Run("credentials required", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=password",
			body: map[string]string{"identifier": "ada"}})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		require.Len(t, body.Errors, 1)
		assert.Equal(t, "CREDENTIALS_REQUIRED", body.Errors[0].Code)
		assert.Equal(t, "password", body.Errors[0].Data.Path)
	})

	t.Run("challenge returned", func(t *testing.T) {
		ts.grants.result = &services.GrantResult{Challenge: &services.Challenge{
			Token:   "challenge",
			Expires: testExpiry,
			Types:   []models.MFAMethod{models.MFAMethodEmail, models.MFAMethodTOTP},
		}}
		w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=password",
			body: map[string]string{"identifier": "ada", "password": "pw"}})
		require.Equal(t, http.StatusOK, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "challenge", got["token"])
		assert.Equal(t, []any{"email", "totp"}, got["types"])
		assert.NotContains(t, got, "access_token")

		require.NotNil(t, ts.grants.last)
		assert.Equal(t, models.GrantPassword, ts.grants.last.GrantType)
		assert.Equal(t, "ada", ts.grants.last.Identifier)
		assert.Equal(t, "pw", ts.grants.last.Password)
	})

	t.Run("service errors are mapped", func(t *testing.T) {
		ts.grants.err = common.ErrAccountBanned
		defer func() { ts.grants.err = nil }()
		w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=password",
			body: map[string]string{"identifier": "ada", "password": "pw"}})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ACCOUNT_BANNED", errorCode(t, w))
	})
}

func TestToken_MFAChallengeGrant(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"missing token", map[string]string{"type": "totp", "code": "123456"}, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"bad method", map[string]string{"token": "t", "type": "sms", "code": "123456"}, http.StatusBadRequest, "UNSUPPORTED_MFA_METHOD"},
		{"missing code", map[string]string{"token": "t", "type": "totp"}, http.StatusBadRequest, "CODE_REQUIRED"},
		{"short totp", map[string]string{"token": "t", "type": "totp", "code": "12345"}, http.StatusBadRequest, "INVALID_CODE"},
		{"letters in totp", map[string]string{"token": "t", "type": "totp", "code": "12a456"}, http.StatusBadRequest, "INVALID_CODE"},
		{"seven digit totp", map[string]string{"token": "t", "type": "totp", "code": "1234567"}, http.StatusBadRequest, "INVALID_CODE"},
		{"email code length", map[string]string{"token": "t", "type": "email", "code": "ABC123"}, http.StatusBadRequest, "INVALID_CODE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=mfa_challenge", body: tt.body})
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
			assert.Nil(t, ts.grants.last)
		})
	}
}

func TestToken_SessionPairUsesCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.grants.result = &services.GrantResult{Tokens: &services.TokenPair{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expires:      testExpiry,
		SessionBound: true,
	}}

	w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=mfa_challenge",
		body: map[string]string{"token": "t", "type": "email", "code": "AB12cd34"}})
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "access", got["access_token"])
	assert.Equal(t, "bearer", got["token_type"])
	assert.NotContains(t, got, "refresh_token")

	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, "refresh", cookie.Value)
	assert.Equal(t, "/auth/token", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	req := ts.grants.last
	assert.Equal(t, models.MFAMethodEmail, req.Method)
	assert.Equal(t, "AB12cd34", req.Code)
	assert.Equal(t, "t", req.ChallengeToken)
}

func TestToken_AuthorizationCodeGrant(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=authorization_code",
		body: map[string]string{"code": "not-a-uuid"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	codes := make([]string, 0, len(body.Errors))
	for _, e := range body.Errors {
		codes = append(codes, e.Code)
	}
	assert.Equal(t, []string{"INVALID_AUTHORIZATION_CODE", "CLIENT_ID_REQUIRED", "CREDENTIALS_REQUIRED"}, codes)

	ts.grants.result = &services.GrantResult{Tokens: &services.TokenPair{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expires:      testExpiry,
	}}
	w = ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=authorization_code",
		body: map[string]string{
			"code":          "7d3b0f5e-1c2a-4e8f-9b6d-2a4c6e8f0a1b",
			"client_id":     testClientID,
			"client_secret": "s3cret",
		}})
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "refresh", got["refresh_token"])
	assert.Nil(t, refreshCookie(w))
	assert.Equal(t, testClientID, ts.grants.last.ClientID)
}

func TestToken_ClientCredentialsGrant(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=client_credentials",
		body: map[string]string{"client_secret": "s3cret"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CLIENT_ID_REQUIRED", errorCode(t, w))

	ts.grants.result = &services.GrantResult{Tokens: &services.TokenPair{AccessToken: "access", Expires: testExpiry}}
	w = ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=client_credentials",
		body: map[string]string{"client_id": testClientID, "client_secret": "s3cret"}})
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "access", got["access_token"])
	assert.NotContains(t, got, "refresh_token")
}

func TestToken_RefreshGrant(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=refresh_token"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "REFRESH_TOKEN_REQUIRED", body.Errors[0].Code)
	assert.Equal(t, "cookie", body.Errors[0].Data.Location)

	ts.grants.result = &services.GrantResult{Tokens: &services.TokenPair{
		AccessToken: "access", RefreshToken: "rotated", Expires: testExpiry, SessionBound: true,
	}}
	w = ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=refresh_token",
		cookie: &http.Cookie{Name: common.RefreshTokenCookieName, Value: "from-cookie"},
		body:   map[string]string{"refresh_token": "from-body"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "from-cookie", ts.grants.last.RefreshToken)
	require.NotNil(t, refreshCookie(w))
	assert.Equal(t, "rotated", refreshCookie(w).Value)

	w = ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=refresh_token",
		body: map[string]string{"refresh_token": "from-body"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "from-body", ts.grants.last.RefreshToken)

	ts.grants.err = common.ErrInvalidRefreshToken
	w = ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=refresh_token",
		body: map[string]string{"refresh_token": "reused"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(t, w))
}

func TestToken_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.limiter.err = common.ErrRateLimited

	w := ts.do(t, request{method: http.MethodPost, path: "/auth/token?grant_type=password",
		body: map[string]string{"identifier": "ada", "password": "pw"}})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", errorCode(t, w))
	assert.Nil(t, ts.grants.last)
	assert.Len(t, ts.limiter.keys, 1)
}

func TestRevoke(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, request{method: http.MethodDelete, path: "/auth/oauth2/revoke", body: map[string]string{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "REFRESH_TOKEN_REQUIRED", errorCode(t, w))

	w = ts.do(t, request{method: http.MethodDelete, path: "/auth/oauth2/revoke",
		body: map[string]string{"refresh_token": "rt"}})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"rt"}, ts.grants.revoked)

	ts.grants.revokeFn = func(string) error { return common.ErrConnectionRevoked }
	w = ts.do(t, request{method: http.MethodDelete, path: "/auth/oauth2/revoke",
		body: map[string]string{"refresh_token": "rt"}})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONNECTION_ALREADY_REVOKED", errorCode(t, w))
}
