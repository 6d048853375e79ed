// Package auth mints and parses the three token kinds: access, refresh and
// MFA challenge. Each kind is signed with its own HS256 secret; all share the
// issuer and audience. Minting is pure: persisting ledger rows is up to the
// caller.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Options struct {
	Issuer          string
	Audience        string
	AccessSecret    []byte
	RefreshSecret   []byte
	ChallengeSecret []byte

	AccessTTL       time.Duration
	ClientAccessTTL time.Duration
	ChallengeTTL    time.Duration
}

// OptionsFromConfig picks the token settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		AccessSecret:    []byte(cfg.AccessTokenSecret),
		RefreshSecret:   []byte(cfg.RefreshTokenSecret),
		ChallengeSecret: []byte(cfg.MFATokenSecret),
		AccessTTL:       cfg.AccessTokenValidity,
		ClientAccessTTL: cfg.ClientAccessTokenValidity,
		ChallengeTTL:    cfg.MFATokenValidity,
	}
}

type Issuer struct {
	opts Options
	now  func() time.Time
}

func NewIssuer(opts Options) *Issuer {
	return &Issuer{opts: opts, now: time.Now}
}

// AccessParams describe the subject of an access token.
type AccessParams struct {
	Subject        string
	GrantType      models.GrantType
	SessionID      string
	ClientID       string
	OrganizationID int64
}

// Signed is a minted token with its expiry, zero for refresh tokens.
type Signed struct {
	Token   string
	Expires time.Time
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	rc := jwt.RegisteredClaims{
		Issuer:   i.opts.Issuer,
		Subject:  subject,
		Audience: jwt.ClaimStrings{i.opts.Audience},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return rc
}

// AccessTTL returns the lifetime of access tokens for grant.
func (i *Issuer) AccessTTL(grant models.GrantType) time.Duration {
	if grant == models.GrantAuthorizationCode || grant == models.GrantClientCredentials {
		return i.opts.ClientAccessTTL
	}
	return i.opts.AccessTTL
}

func (i *Issuer) Access(p AccessParams) (*Signed, error) {
	claims := &AccessClaims{
		RegisteredClaims: i.registered(p.Subject, i.AccessTTL(p.GrantType)),
		GrantType:        p.GrantType,
		Role:             common.RoleAuthenticated,
		SessionID:        p.SessionID,
		ClientID:         p.ClientID,
		OrganizationID:   p.OrganizationID,
	}
	return sign(claims, i.opts.AccessSecret, expiresAt(claims.RegisteredClaims))
}

// RefreshParams describe a refresh token. JTI must match the ledger row
// the caller persists.
type RefreshParams struct {
	Subject  string
	JTI      string
	Binding  models.RefreshBinding
	ClientID string
}

func (i *Issuer) Refresh(p RefreshParams) (*Signed, error) {
	if p.JTI == "" || p.Binding == nil {
		return nil, errors.New("refresh token needs a jti and a binding")
	}
	claims := &RefreshClaims{
		RegisteredClaims: i.registered(p.Subject, 0),
		GrantType:        models.OriginGrant(p.Binding),
		ClientID:         p.ClientID,
	}
	claims.ID = p.JTI
	switch b := p.Binding.(type) {
	case models.SessionBound:
		claims.SessionID = b.SessionID
	case models.ConnectionBound:
		claims.ConnectionID = b.ConnectionID
	}
	return sign(claims, i.opts.RefreshSecret, time.Time{})
}

func (i *Issuer) Challenge(accountID string, methods []models.MFAMethod) (*Signed, error) {
	claims := &ChallengeClaims{
		RegisteredClaims: i.registered(accountID, i.opts.ChallengeTTL),
		GrantType:        models.GrantMFAChallenge,
		Types:            methods,
	}
	// The jti lets the token be redeemed once.
	claims.ID = uuid.NewString()
	return sign(claims, i.opts.ChallengeSecret, expiresAt(claims.RegisteredClaims))
}

func expiresAt(rc jwt.RegisteredClaims) time.Time {
	if rc.ExpiresAt == nil {
		return time.Time{}
	}
	return rc.ExpiresAt.Time
}

func sign(claims jwt.Claims, secret []byte, expires time.Time) (*Signed, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return nil, err
	}
	return &Signed{Token: token, Expires: expires}, nil
}

func (i *Issuer) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.opts.AccessSecret, true); err != nil {
		return nil, err
	}
	if claims.GrantType == models.GrantUnknown || claims.GrantType == models.GrantMFAChallenge {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.opts.RefreshSecret, false); err != nil {
		return nil, err
	}
	if _, ok := claims.Binding(); !ok || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) ParseChallenge(token string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	if err := i.parse(token, claims, i.opts.ChallengeSecret, true); err != nil {
		return nil, err
	}
	if claims.GrantType != models.GrantMFAChallenge || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte, expiring bool) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.opts.Issuer),
		jwt.WithAudience(i.opts.Audience),
		jwt.WithTimeFunc(i.now),
	}
	if expiring {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}
	return nil
}
