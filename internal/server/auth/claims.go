package auth

import (
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are carried by short-lived bearer tokens. ClientID is set for
// authorization_code and client_credentials grants; SessionID for password
// sessions.
type AccessClaims struct {
	jwt.RegisteredClaims
	GrantType      models.GrantType `json:"grant_type"`
	Role           string           `json:"role"`
	SessionID      string           `json:"session_id,omitempty"`
	ClientID       string           `json:"client_id,omitempty"`
	OrganizationID int64            `json:"organization_id,omitempty"`
}

// RefreshClaims carry no expiry; the ledger row decides validity. GrantType
// is the originating grant, password or authorization_code.
type RefreshClaims struct {
	jwt.RegisteredClaims
	GrantType    models.GrantType `json:"grant_type"`
	SessionID    string           `json:"session_id,omitempty"`
	ConnectionID int64            `json:"connection_id,omitempty"`
	ClientID     string           `json:"client_id,omitempty"`
}

// Binding rebuilds the ledger binding encoded in the claims.
func (c *RefreshClaims) Binding() (models.RefreshBinding, bool) {
	switch c.GrantType {
	case models.GrantPassword:
		if c.SessionID == "" {
			return nil, false
		}
		return models.SessionBound{SessionID: c.SessionID}, true
	case models.GrantAuthorizationCode:
		if c.ConnectionID == 0 {
			return nil, false
		}
		return models.ConnectionBound{ConnectionID: c.ConnectionID}, true
	}
	return nil, false
}

// ChallengeClaims list the MFA methods the holder may answer with.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	GrantType models.GrantType   `json:"grant_type"`
	Types     []models.MFAMethod `json:"types"`
}
