package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubIdentity struct {
	signUp   func(email, username, password string) (*models.Account, error)
	verify   func(email, token string) error
	resend   func(email string) error
	accounts map[string]*models.Account
}

func (s *stubIdentity) SignUp(_ context.Context, email, username, password string) (*models.Account, error) {
	return s.signUp(email, username, password)
}

func (s *stubIdentity) VerifyEmail(_ context.Context, email, token string) error {
	return s.verify(email, token)
}

func (s *stubIdentity) ResendVerification(_ context.Context, email string) error {
	return s.resend(email)
}

func (s *stubIdentity) Account(_ context.Context, accountID string) (*models.Account, error) {
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	return a, nil
}

type stubMFA struct {
	status models.MFAStatus
	label  string
	sentTo []string
	calls  []string
	err    error
}

func (s *stubMFA) Status(context.Context, string) (*models.MFAStatus, error) {
	st := s.status
	return &st, s.err
}

func (s *stubMFA) BeginTOTPEnrollment(_ context.Context, _, label string) (*services.TOTPEnrollment, error) {
	s.label = label
	if s.err != nil {
		return nil, s.err
	}
	return &services.TOTPEnrollment{Secret: "JBSWY3DPEHPK3PXP", OTPAuthURI: "otpauth://totp/idkeeper:" + label}, nil
}

func (s *stubMFA) VerifyTOTPEnrollment(_ context.Context, _, code string) error {
	s.calls = append(s.calls, "verify-totp:"+code)
	return s.err
}

func (s *stubMFA) DisableTOTP(_ context.Context, _, code string) error {
	s.calls = append(s.calls, "disable-totp:"+code)
	return s.err
}

func (s *stubMFA) EnableEmail(_ context.Context, _, code string) error {
	s.calls = append(s.calls, "enable-email:"+code)
	return s.err
}

func (s *stubMFA) DisableEmail(_ context.Context, _, code string) error {
	s.calls = append(s.calls, "disable-email:"+code)
	return s.err
}

func (s *stubMFA) SendEmailCode(_ context.Context, account *models.Account) error {
	if s.err != nil {
		return s.err
	}
	s.sentTo = append(s.sentTo, account.Email)
	return nil
}

type stubGrants struct {
	last     *services.TokenRequest
	result   *services.GrantResult
	err      error
	revoked  []string
	revokeFn func(token string) error
}

func (s *stubGrants) Dispatch(_ context.Context, req *services.TokenRequest) (*services.GrantResult, error) {
	s.last = req
	return s.result, s.err
}

func (s *stubGrants) Revoke(_ context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	if s.revokeFn != nil {
		return s.revokeFn(token)
	}
	return nil
}

type stubSessions struct {
	signedOut []string
	all       []string
	list      []models.Session
	err       error
}

func (s *stubSessions) SignOut(_ context.Context, accountID, sessionID string) error {
	s.signedOut = append(s.signedOut, accountID+"/"+sessionID)
	return s.err
}

func (s *stubSessions) SignOutAll(_ context.Context, accountID string, method models.MFAMethod, code string) error {
	s.all = append(s.all, accountID+"/"+string(method)+"/"+code)
	return s.err
}

func (s *stubSessions) Sessions(context.Context, string) ([]models.Session, error) {
	return s.list, s.err
}

type stubOAuth2 struct {
	grant   *services.CodeGrant
	scopes  []string
	deleted []int64
	err     error
}

func (s *stubOAuth2) IssueAuthorizationCode(_ context.Context, _, _, _ string, scopes []string) (*services.CodeGrant, error) {
	s.scopes = scopes
	return s.grant, s.err
}

func (s *stubOAuth2) DeleteConnection(_ context.Context, _ string, id int64) error {
	s.deleted = append(s.deleted, id)
	return s.err
}

type stubScopes struct {
	err error
}

func (s *stubScopes) RequireScopes(context.Context, *auth.AccessClaims, []string) error {
	return s.err
}

type stubLimiter struct {
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) error {
	s.keys = append(s.keys, key)
	return s.err
}

const (
	testAccountID = "5f0c7a52-3a4e-4c0e-9d55-5c8a1d7e2b11"
	testSessionID = "0b9e4a8e-6a8c-4df4-8c33-0f2e86d4a9f1"
	testClientID  = "9c1f7f0e-2b8f-4b37-9a6e-3f4d2a1c5b7e"
)

type testServer struct {
	router   *gin.Engine
	issuer   *auth.Issuer
	identity *stubIdentity
	mfa      *stubMFA
	grants   *stubGrants
	sessions *stubSessions
	oauth2   *stubOAuth2
	scopes   *stubScopes
	limiter  *stubLimiter
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AccessTokenSecret = "access-secret"
	cfg.RefreshTokenSecret = "refresh-secret"
	cfg.MFATokenSecret = "mfa-secret"
	return cfg
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig()
	ts := &testServer{
		issuer: auth.NewIssuer(auth.OptionsFromConfig(cfg)),
		identity: &stubIdentity{accounts: map[string]*models.Account{
			testAccountID: {ID: testAccountID, Email: "ada@example.com", Username: "ada"},
		}},
		mfa:      &stubMFA{},
		grants:   &stubGrants{},
		sessions: &stubSessions{},
		oauth2:   &stubOAuth2{},
		scopes:   &stubScopes{},
		limiter:  &stubLimiter{},
	}
	ts.router = NewRouter(Deps{
		Identity: ts.identity,
		MFA:      ts.mfa,
		Grants:   ts.grants,
		Sessions: ts.sessions,
		OAuth2:   ts.oauth2,
		Scopes:   ts.scopes,
		Limiter:  ts.limiter,
		Issuer:   ts.issuer,
	}, cfg, logging.Nop{})
	return ts
}

func (ts *testServer) sessionToken(t *testing.T) string {
	t.Helper()
	s, err := ts.issuer.Access(auth.AccessParams{
		Subject:   testAccountID,
		GrantType: models.GrantPassword,
		SessionID: testSessionID,
	})
	require.NoError(t, err)
	return s.Token
}

func (ts *testServer) connectionToken(t *testing.T) string {
	t.Helper()
	s, err := ts.issuer.Access(auth.AccessParams{
		Subject:        testAccountID,
		GrantType:      models.GrantAuthorizationCode,
		ClientID:       testClientID,
		OrganizationID: 42,
	})
	require.NoError(t, err)
	return s.Token
}

func (ts *testServer) challengeToken(t *testing.T, methods ...models.MFAMethod) string {
	t.Helper()
	s, err := ts.issuer.Challenge(testAccountID, methods)
	require.NoError(t, err)
	return s.Token
}

type request struct {
	method string
	path   string
	body   any
	bearer string
	cookie *http.Cookie
}

func (ts *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &buf)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Errors)
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeError(t, w).Errors[0].Code
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == common.RefreshTokenCookieName {
			return c
		}
	}
	return nil
}

var testExpiry = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
