package models

import "time"

// RefreshBinding ties a refresh credential to either a sign-in session or an
// OAuth2 connection, never both.
type RefreshBinding interface {
	grantType() GrantType
}

// SessionBound binds a credential to a password sign-in session. An account
// may hold many sessions at once.
type SessionBound struct {
	SessionID string
}

func (SessionBound) grantType() GrantType { return GrantPassword }

// ConnectionBound binds a credential to an OAuth2 connection. A connection
// holds at most one live credential.
type ConnectionBound struct {
	ConnectionID int64
}

func (ConnectionBound) grantType() GrantType { return GrantAuthorizationCode }

// OriginGrant returns the grant kind that produces credentials with binding b.
func OriginGrant(b RefreshBinding) GrantType { return b.grantType() }

// RefreshCredential is the ledger row backing a refresh token. Its presence
// is what makes the token valid.
type RefreshCredential struct {
	Token     string
	AccountID string
	Binding   RefreshBinding
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session describes a live password sign-in session.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
