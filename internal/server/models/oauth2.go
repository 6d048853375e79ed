package models

import "time"

// ScopeKind separates consent-grantable scopes from client-trusted ones.
type ScopeKind string

const (
	ScopeKindUser   ScopeKind = "user"
	ScopeKindClient ScopeKind = "client"
)

// Scope is a named permission unit.
type Scope struct {
	ID   int64
	Name string
	Kind ScopeKind
}

// Client is a registered third-party application.
type Client struct {
	ID             int64
	ClientID       string
	ClientSecret   string
	Name           string
	RedirectURL    string
	OrganizationID int64
}

// AuthorizationCode is a single-use consent code for an (account, client) pair.
type AuthorizationCode struct {
	ID             int64
	Code           string
	AccountID      string
	ClientID       int64
	OrganizationID int64
	ScopeIDs       []int64
	CreatedAt      time.Time
}

// ExpiresAt returns the moment the code stops being redeemable.
func (c *AuthorizationCode) ExpiresAt(validity time.Duration) time.Time {
	return c.CreatedAt.Add(validity)
}

// Connection is a durable consent record between an account and a client.
type Connection struct {
	ID        int64
	AccountID string
	ClientID  int64
	CreatedAt time.Time
}
