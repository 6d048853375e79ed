package services

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/authcodes"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/clients"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/connections"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/mfa"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/scopes"
	"github.com/google/uuid"
)

// memStore backs every fake repository. Conditional updates report zero
// rows under the same conditions as the SQL they stand in for.
type memStore struct {
	mu  sync.Mutex
	now func() time.Time

	accounts    map[string]*models.Account
	profiles    map[string]*models.MFAProfile
	refresh     map[string]*models.RefreshCredential
	clients     map[string]*models.Client
	scopes      map[int64]models.Scope
	clientScope map[int64][]int64
	codes       map[int64]*models.AuthorizationCode
	conns       map[int64]*models.Connection
	connScopes  map[int64][]int64
	nextID      int64

	// errs injects a failure into the named operation.
	errs map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		now:         time.Now,
		accounts:    map[string]*models.Account{},
		profiles:    map[string]*models.MFAProfile{},
		refresh:     map[string]*models.RefreshCredential{},
		clients:     map[string]*models.Client{},
		scopes:      map[int64]models.Scope{},
		clientScope: map[int64][]int64{},
		codes:       map[int64]*models.AuthorizationCode{},
		conns:       map[int64]*models.Connection{},
		connScopes:  map[int64][]int64{},
		errs:        map[string]error{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) fail(op string) error {
	return s.errs[op]
}

func (s *memStore) addScope(name string, kind models.ScopeKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.scopes[id] = models.Scope{ID: id, Name: name, Kind: kind}
	return id
}

func (s *memStore) addClient(c models.Client, scopeIDs ...int64) *models.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	s.clients[c.ClientID] = &c
	s.clientScope[c.ID] = scopeIDs
	return &c
}

// addAccount stores a verified account with the default MFA profile.
func (s *memStore) addAccount(email, username, hash string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	a := &models.Account{
		ID:              uuid.NewString(),
		Email:           email,
		Username:        username,
		PasswordHash:    hash,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
	}
	s.accounts[a.ID] = a
	s.profiles[a.ID] = &models.MFAProfile{AccountID: a.ID, EmailEnabled: true}
	cp := *a
	return &cp
}

func (s *memStore) profile(accountID string) *models.MFAProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *s.profiles[accountID]
	return &p
}

func (s *memStore) refreshRows() []models.RefreshCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RefreshCredential, 0, len(s.refresh))
	for _, r := range s.refresh {
		out = append(out, *r)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// --- accounts ---

type fakeAccounts struct{ s *memStore }

func (f fakeAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("accounts.Create"); err != nil {
		return nil, err
	}
	for _, x := range s.accounts {
		if x.Email == a.Email {
			return nil, common.ErrEmailAlreadyTaken
		}
		if x.Username == a.Username {
			return nil, common.ErrUsernameAlreadyTaken
		}
	}
	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = s.now()
	if cp.VerificationToken != nil {
		cp.VerificationSentAt = ptr(s.now())
	}
	s.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f fakeAccounts) find(match func(*models.Account) bool) (*models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, a := range f.s.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.ID == id })
}

func (f fakeAccounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.Email == email })
}

func (f fakeAccounts) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.Username == username })
}

func (f fakeAccounts) SetVerificationToken(ctx context.Context, id, token string) (int64, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.EmailVerifiedAt != nil {
		return 0, nil
	}
	a.VerificationToken = ptr(token)
	a.VerificationSentAt = ptr(s.now())
	return 1, nil
}

func (f fakeAccounts) MarkEmailVerified(ctx context.Context, id string) (int64, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.EmailVerifiedAt != nil {
		return 0, nil
	}
	a.EmailVerifiedAt = ptr(s.now())
	a.VerificationToken = nil
	a.VerificationSentAt = nil
	return 1, nil
}

// --- mfa ---

type fakeMFA struct{ s *memStore }

func (f fakeMFA) Create(ctx context.Context, accountID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.fail("mfa.Create"); err != nil {
		return err
	}
	f.s.profiles[accountID] = &models.MFAProfile{AccountID: accountID, EmailEnabled: true}
	return nil
}

func (f fakeMFA) Get(ctx context.Context, accountID string) (*models.MFAProfile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.profiles[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

// update applies fn to the profile when cond holds and reports rows touched.
func (f fakeMFA) update(accountID string, cond func(*models.MFAProfile) bool, fn func(*models.MFAProfile)) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.profiles[accountID]
	if !ok || !cond(p) {
		return 0, nil
	}
	fn(p)
	return 1, nil
}

func always(*models.MFAProfile) bool { return true }

func clearCode(p *models.MFAProfile) {
	p.EmailCode = nil
	p.EmailCodeSentAt = nil
}

func (f fakeMFA) SetEmailCode(ctx context.Context, accountID, code string) (int64, error) {
	return f.update(accountID, always, func(p *models.MFAProfile) {
		p.EmailCode = ptr(code)
		p.EmailCodeSentAt = ptr(f.s.now())
	})
}

func (f fakeMFA) ConsumeEmailCode(ctx context.Context, accountID, code string) (int64, error) {
	return f.update(accountID,
		func(p *models.MFAProfile) bool { return p.EmailCode != nil && *p.EmailCode == code },
		clearCode)
}

func (f fakeMFA) EnableEmail(ctx context.Context, accountID string) (int64, error) {
	return f.update(accountID,
		func(p *models.MFAProfile) bool { return !p.EmailEnabled },
		func(p *models.MFAProfile) { p.EmailEnabled = true; clearCode(p) })
}

func (f fakeMFA) DisableEmail(ctx context.Context, accountID string) (int64, error) {
	return f.update(accountID,
		func(p *models.MFAProfile) bool { return p.EmailEnabled && p.TOTPVerifiedAt != nil },
		func(p *models.MFAProfile) { p.EmailEnabled = false; clearCode(p) })
}

func (f fakeMFA) SetTOTPSecret(ctx context.Context, accountID, secret string) (int64, error) {
	return f.update(accountID,
		func(p *models.MFAProfile) bool { return p.TOTPVerifiedAt == nil },
		func(p *models.MFAProfile) { p.TOTPSecret = ptr(secret) })
}

func (f fakeMFA) MarkTOTPVerified(ctx context.Context, accountID, secret string) (int64, error) {
	return f.update(accountID,
		func(p *models.MFAProfile) bool {
			return p.TOTPVerifiedAt == nil && p.TOTPSecret != nil && *p.TOTPSecret == secret
		},
		func(p *models.MFAProfile) { p.TOTPVerifiedAt = ptr(f.s.now()) })
}

func (f fakeMFA) DisableTOTP(ctx context.Context, accountID string) (int64, error) {
	return f.update(accountID,
		func(p *models.MFAProfile) bool { return p.TOTPVerifiedAt != nil && p.EmailEnabled },
		func(p *models.MFAProfile) { p.TOTPSecret = nil; p.TOTPVerifiedAt = nil })
}

// --- refresh tokens ---

type fakeRefresh struct{ s *memStore }

func (f fakeRefresh) Create(ctx context.Context, cred *models.RefreshCredential) error {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("refresh.Create"); err != nil {
		return err
	}
	if cb, ok := cred.Binding.(models.ConnectionBound); ok {
		for _, r := range s.refresh {
			if b, ok := r.Binding.(models.ConnectionBound); ok && b.ConnectionID == cb.ConnectionID {
				return common.ErrorAlreadyExists
			}
		}
	}
	cp := *cred
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt
	s.refresh[cp.Token] = &cp
	return nil
}

func (f fakeRefresh) Exists(ctx context.Context, token, accountID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.refresh[token]
	return ok && r.AccountID == accountID, nil
}

func (f fakeRefresh) deleteWhere(match func(*models.RefreshCredential) bool) int64 {
	var n int64
	for k, r := range f.s.refresh {
		if match(r) {
			delete(f.s.refresh, k)
			n++
		}
	}
	return n
}

func sessionOf(r *models.RefreshCredential) (string, bool) {
	b, ok := r.Binding.(models.SessionBound)
	return b.SessionID, ok
}

func connectionOf(r *models.RefreshCredential) (int64, bool) {
	b, ok := r.Binding.(models.ConnectionBound)
	return b.ConnectionID, ok
}

func (f fakeRefresh) DeleteSessionToken(ctx context.Context, accountID, sessionID, token string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.deleteWhere(func(r *models.RefreshCredential) bool {
		sid, ok := sessionOf(r)
		return ok && sid == sessionID && r.AccountID == accountID && r.Token == token
	}), nil
}

func (f fakeRefresh) UpdateConnectionToken(ctx context.Context, connectionID int64, accountID, oldToken, newToken string) (int64, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refresh[oldToken]
	if !ok || r.AccountID != accountID {
		return 0, nil
	}
	if cid, ok := connectionOf(r); !ok || cid != connectionID {
		return 0, nil
	}
	delete(s.refresh, oldToken)
	r.Token = newToken
	r.UpdatedAt = s.now()
	s.refresh[newToken] = r
	return 1, nil
}

func (f fakeRefresh) DeleteSession(ctx context.Context, accountID, sessionID string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.deleteWhere(func(r *models.RefreshCredential) bool {
		sid, ok := sessionOf(r)
		return ok && sid == sessionID && r.AccountID == accountID
	}), nil
}

func (f fakeRefresh) DeleteAllSessions(ctx context.Context, accountID string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.deleteWhere(func(r *models.RefreshCredential) bool {
		_, ok := sessionOf(r)
		return ok && r.AccountID == accountID
	}), nil
}

func (f fakeRefresh) ListSessions(ctx context.Context, accountID string) ([]models.Session, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []models.Session{}
	for _, r := range f.s.refresh {
		if sid, ok := sessionOf(r); ok && r.AccountID == accountID {
			out = append(out, models.Session{SessionID: sid, CreatedAt: r.CreatedAt})
		}
	}
	return out, nil
}

func (f fakeRefresh) DeleteByConnection(ctx context.Context, connectionID int64) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.deleteWhere(func(r *models.RefreshCredential) bool {
		cid, ok := connectionOf(r)
		return ok && cid == connectionID
	}), nil
}

func (f fakeRefresh) DeleteConnectionToken(ctx context.Context, accountID, token string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.deleteWhere(func(r *models.RefreshCredential) bool {
		_, ok := connectionOf(r)
		return ok && r.Token == token && r.AccountID == accountID
	}), nil
}

// --- clients ---

type fakeClients struct{ s *memStore }

func (f fakeClients) GetByClientID(ctx context.Context, clientID string) (*models.Client, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.clients[clientID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeClients) Scopes(ctx context.Context, id int64, kind models.ScopeKind) ([]models.Scope, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []models.Scope{}
	for _, sid := range f.s.clientScope[id] {
		if sc := f.s.scopes[sid]; sc.Kind == kind {
			out = append(out, sc)
		}
	}
	return out, nil
}

// --- scopes ---

type fakeScopes struct{ s *memStore }

func (f fakeScopes) count(ids []int64, kind models.ScopeKind, names []string) int {
	n := 0
	for _, id := range ids {
		sc := f.s.scopes[id]
		if (kind == "" || sc.Kind == kind) && slices.Contains(names, sc.Name) {
			n++
		}
	}
	return n
}

func (f fakeScopes) CountClientScopes(ctx context.Context, clientID string, names []string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.clients[clientID]
	if !ok {
		return 0, nil
	}
	return f.count(f.s.clientScope[c.ID], models.ScopeKindClient, names), nil
}

func (f fakeScopes) CountConnectionScopes(ctx context.Context, accountID, clientID string, names []string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.clients[clientID]
	if !ok {
		return 0, nil
	}
	for _, conn := range f.s.conns {
		if conn.AccountID == accountID && conn.ClientID == c.ID {
			return f.count(f.s.connScopes[conn.ID], "", names), nil
		}
	}
	return 0, nil
}

// --- authorization codes ---

type fakeAuthCodes struct{ s *memStore }

func (f fakeAuthCodes) Upsert(ctx context.Context, code *models.AuthorizationCode) error {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	code.CreatedAt = s.now()
	for _, c := range s.codes {
		if c.AccountID == code.AccountID && c.ClientID == code.ClientID {
			c.Code = code.Code
			c.CreatedAt = code.CreatedAt
			code.ID = c.ID
			return nil
		}
	}
	code.ID = s.id()
	cp := *code
	s.codes[cp.ID] = &cp
	return nil
}

func (f fakeAuthCodes) ReplaceScopes(ctx context.Context, codeID int64, scopeIDs []int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if c, ok := f.s.codes[codeID]; ok {
		c.ScopeIDs = slices.Clone(scopeIDs)
	}
	return nil
}

func (f fakeAuthCodes) FindByCredentials(ctx context.Context, code, clientID, clientSecret string) (*models.AuthorizationCode, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.clients[clientID]
	if !ok || cl.ClientSecret != clientSecret {
		return nil, common.ErrorNotFound
	}
	for _, c := range s.codes {
		if c.Code == code && c.ClientID == cl.ID {
			cp := *c
			cp.OrganizationID = cl.OrganizationID
			cp.ScopeIDs = slices.Clone(c.ScopeIDs)
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeAuthCodes) Delete(ctx context.Context, id int64, code string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.codes[id]
	if !ok || c.Code != code {
		return 0, nil
	}
	delete(f.s.codes, id)
	return 1, nil
}

// --- connections ---

type fakeConnections struct{ s *memStore }

func (f fakeConnections) lookup(accountID string, clientID int64) *models.Connection {
	for _, c := range f.s.conns {
		if c.AccountID == accountID && c.ClientID == clientID {
			return c
		}
	}
	return nil
}

func (f fakeConnections) Find(ctx context.Context, accountID string, clientID int64) (*models.Connection, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := f.lookup(accountID, clientID)
	if c == nil {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeConnections) Upsert(ctx context.Context, accountID string, clientID int64) (*models.Connection, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c := f.lookup(accountID, clientID)
	if c == nil {
		c = &models.Connection{ID: s.id(), AccountID: accountID, ClientID: clientID, CreatedAt: s.now()}
		s.conns[c.ID] = c
	}
	cp := *c
	return &cp, nil
}

func (f fakeConnections) AddScopes(ctx context.Context, connectionID int64, scopeIDs []int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range scopeIDs {
		if !slices.Contains(f.s.connScopes[connectionID], id) {
			f.s.connScopes[connectionID] = append(f.s.connScopes[connectionID], id)
		}
	}
	return nil
}

func (f fakeConnections) Delete(ctx context.Context, connectionID int64, accountID string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.conns[connectionID]
	if !ok || c.AccountID != accountID {
		return 0, nil
	}
	delete(f.s.conns, connectionID)
	delete(f.s.connScopes, connectionID)
	return 1, nil
}

// --- manager ---

type fakeManager struct{ s *memStore }

func (m fakeManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m fakeManager) Accounts(dbx.DBTX) accounts.Repository           { return fakeAccounts{m.s} }
func (m fakeManager) MFA(dbx.DBTX) mfa.Repository                     { return fakeMFA{m.s} }
func (m fakeManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return fakeRefresh{m.s} }
func (m fakeManager) Clients(dbx.DBTX) clients.Repository             { return fakeClients{m.s} }
func (m fakeManager) Scopes(dbx.DBTX) scopes.Repository               { return fakeScopes{m.s} }
func (m fakeManager) AuthCodes(dbx.DBTX) authcodes.Repository         { return fakeAuthCodes{m.s} }
func (m fakeManager) Connections(dbx.DBTX) connections.Repository     { return fakeConnections{m.s} }

// --- collaborators ---

// plainHasher stores passwords prefixed, so tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hash:" + p, nil }
func (plainHasher) Verify(p, digest string) (bool, error) {
	return digest == "hash:"+p, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureSender) Send(ctx context.Context, msg mailer.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *captureSender) messages() []mailer.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

// fakeOTP accepts exactly "123456" for any secret.
type fakeOTP struct {
	secret string
	err    error
}

func (f fakeOTP) GenerateSecret() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.secret == "" {
		return "JBSWY3DPEHPK3PXP", nil
	}
	return f.secret, nil
}

func (f fakeOTP) ProvisionURI(secret, account string) string {
	return "otpauth://totp/idkeeper:" + account + "?secret=" + secret
}

func (f fakeOTP) Verify(secret, code string) (bool, error) {
	return code == "123456", nil
}

type fakeGuard struct {
	mu       sync.Mutex
	blocked  bool
	checkErr error
	failures int
	resets   int
}

func (g *fakeGuard) Check(ctx context.Context, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkErr != nil {
		return g.checkErr
	}
	if g.blocked {
		return common.ErrTooManyMFAAttempts
	}
	return nil
}

func (g *fakeGuard) RecordFailure(ctx context.Context, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	return nil
}

func (g *fakeGuard) Reset(ctx context.Context, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets++
	return nil
}

// fakeChallenges remembers redeemed challenge ids.
type fakeChallenges struct {
	mu   sync.Mutex
	used map[string]time.Duration
	err  error
}

func (f *fakeChallenges) Redeem(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.used[jti]; ok {
		return false, nil
	}
	f.used[jti] = ttl
	return true, nil
}

// --- harness ---

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PublicURL = "https://id.example.com/"
	cfg.Issuer = "idkeeper"
	cfg.Audience = "idkeeper-api"
	cfg.AccessTokenSecret = "access-secret"
	cfg.RefreshTokenSecret = "refresh-secret"
	cfg.MFATokenSecret = "mfa-secret"
	return cfg
}

type harness struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *memStore
	cfg   *config.Config

	sender     *captureSender
	guard      *fakeGuard
	challenges *fakeChallenges
	issuer     *auth.Issuer

	identity   *IdentityService
	mfa        *MFAService
	ledger     *Ledger
	broker     *Broker
	dispatcher *GrantDispatcher
	sessions   *SessionService
	gate       *ScopeGate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		db:     db,
		mock:   mock,
		store:  newMemStore(),
		cfg:    testConfig(),
		sender: &captureSender{},
		guard:  &fakeGuard{},
	}
	h.challenges = &fakeChallenges{used: map[string]time.Duration{}}
	rm := fakeManager{h.store}
	log := logging.Nop{}

	h.issuer = auth.NewIssuer(auth.OptionsFromConfig(h.cfg))
	h.identity = NewIdentityService(db, rm, plainHasher{}, h.sender, h.cfg, log)
	h.mfa = NewMFAService(db, rm, fakeOTP{}, h.sender, h.guard, h.cfg, log)
	h.ledger = NewLedger(db, rm)
	h.broker = NewBroker(db, rm, h.cfg, log)
	h.dispatcher = NewGrantDispatcher(db, rm, h.identity, h.mfa, h.ledger, h.broker, h.issuer, h.challenges, log)
	h.sessions = NewSessionService(db, h.ledger, h.mfa, log)
	h.gate = NewScopeGate(db, rm)
	return h
}

// expectTx queues one transaction that commits, or rolls back when ok is
// false.
func (h *harness) expectTx(ok bool) {
	h.mock.ExpectBegin()
	if ok {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
}

func (h *harness) verify(t *testing.T) {
	t.Helper()
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
