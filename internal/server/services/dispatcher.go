package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
)

// TokenRequest carries the token-endpoint inputs. Which fields matter
// depends on GrantType.
type TokenRequest struct {
	GrantType models.GrantType

	// password
	Identifier string
	Password   string

	// mfa_challenge
	ChallengeToken string
	Method         models.MFAMethod

	// mfa_challenge and authorization_code
	Code string

	// authorization_code and client_credentials
	ClientID     string
	ClientSecret string

	// refresh_token
	RefreshToken string
}

// Challenge is the password grant's answer: a token to be traded for a
// session once one of Types is answered.
type Challenge struct {
	Token   string             `json:"token"`
	Expires time.Time          `json:"expires"`
	Types   []models.MFAMethod `json:"types"`
}

// TokenPair is issued by every grant except password. RefreshToken is empty
// for client_credentials.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expires      time.Time
	// SessionBound marks pairs whose refresh token goes into the cookie.
	SessionBound bool
}

// GrantResult holds exactly one of Challenge or Tokens.
type GrantResult struct {
	Challenge *Challenge
	Tokens    *TokenPair
}

// ChallengeGuard lets each challenge token be redeemed once.
type ChallengeGuard interface {
	Redeem(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// GrantDispatcher is the token endpoint state machine. Flows that persist a
// refresh credential run in a single transaction together with minting.
type GrantDispatcher struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	identity    *IdentityService
	mfa         *MFAService
	ledger      *Ledger
	broker      *Broker
	issuer      *auth.Issuer
	challenges  ChallengeGuard
	now         func() time.Time
	logger      logging.Logger
}

func NewGrantDispatcher(db *sql.DB, m repomanager.RepositoryManager, identity *IdentityService, mfa *MFAService,
	ledger *Ledger, broker *Broker, issuer *auth.Issuer, challenges ChallengeGuard, logger logging.Logger) *GrantDispatcher {
	return &GrantDispatcher{
		db:          db,
		repomanager: m,
		identity:    identity,
		mfa:         mfa,
		ledger:      ledger,
		broker:      broker,
		issuer:      issuer,
		challenges:  challenges,
		now:         time.Now,
		logger:      logger.With("module", "grant_dispatcher"),
	}
}

func (d *GrantDispatcher) Dispatch(ctx context.Context, req *TokenRequest) (*GrantResult, error) {
	switch req.GrantType {
	case models.GrantPassword:
		c, err := d.password(ctx, req)
		if err != nil {
			return nil, err
		}
		return &GrantResult{Challenge: c}, nil
	case models.GrantMFAChallenge:
		return d.pair(d.mfaChallenge(ctx, req))
	case models.GrantAuthorizationCode:
		return d.pair(d.authorizationCode(ctx, req))
	case models.GrantClientCredentials:
		return d.pair(d.clientCredentials(ctx, req))
	case models.GrantRefreshToken:
		return d.pair(d.refresh(ctx, req))
	default:
		return nil, common.ErrUnsupportedGrantType
	}
}

func (d *GrantDispatcher) pair(p *TokenPair, err error) (*GrantResult, error) {
	if err != nil {
		return nil, err
	}
	return &GrantResult{Tokens: p}, nil
}

// password checks the account and always ends in an MFA challenge, since a
// profile has at least one method enabled.
func (d *GrantDispatcher) password(ctx context.Context, req *TokenRequest) (*Challenge, error) {
	account, err := d.identity.Authenticate(ctx, req.Identifier, req.Password)
	if err != nil {
		return nil, err
	}

	methods, err := d.mfa.Methods(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("account %s has no mfa method enabled", account.ID)
	}

	signed, err := d.issuer.Challenge(account.ID, methods)
	if err != nil {
		return nil, fmt.Errorf("sign challenge token: %w", err)
	}
	return &Challenge{Token: signed.Token, Expires: signed.Expires, Types: methods}, nil
}

func (d *GrantDispatcher) mfaChallenge(ctx context.Context, req *TokenRequest) (*TokenPair, error) {
	claims, err := d.issuer.ParseChallenge(req.ChallengeToken)
	if err != nil {
		return nil, err
	}
	accountID := claims.Subject

	if !slices.Contains(claims.Types, req.Method) {
		switch req.Method {
		case models.MFAMethodEmail:
			return nil, common.ErrEmailMFADisabled
		case models.MFAMethodTOTP:
			return nil, common.ErrTOTPMFADisabled
		default:
			return nil, common.ErrUnsupportedMFAMethod
		}
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, d.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := d.mfa.ChallengeValidate(ctx, tx, accountID, req.Method, req.Code); err != nil {
			return err
		}
		if err := d.redeemChallenge(ctx, claims); err != nil {
			return err
		}
		sessionID, jti, err := d.ledger.CreateSession(ctx, tx, accountID)
		if err != nil {
			return err
		}
		pair, err = d.sessionPair(accountID, sessionID, jti)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info(ctx, "session created", "account_id", accountID)
	return pair, nil
}

// redeemChallenge marks the challenge used once its code checked out, so a
// replay inside the token lifetime is rejected. An unavailable guard is
// logged and let through.
func (d *GrantDispatcher) redeemChallenge(ctx context.Context, claims *auth.ChallengeClaims) error {
	if d.challenges == nil {
		return nil
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(d.now())
	}
	ok, err := d.challenges.Redeem(ctx, claims.ID, ttl)
	if err != nil {
		d.logger.Warn(ctx, "challenge guard unavailable", "error", err)
		return nil
	}
	if !ok {
		return common.ErrInvalidToken
	}
	return nil
}

func (d *GrantDispatcher) sessionPair(accountID, sessionID, jti string) (*TokenPair, error) {
	access, err := d.issuer.Access(auth.AccessParams{
		Subject:   accountID,
		GrantType: models.GrantPassword,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := d.issuer.Refresh(auth.RefreshParams{
		Subject: accountID,
		JTI:     jti,
		Binding: models.SessionBound{SessionID: sessionID},
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		Expires:      access.Expires,
		SessionBound: true,
	}, nil
}

func (d *GrantDispatcher) connectionPair(accountID, clientID string, organizationID, connectionID int64, jti string) (*TokenPair, error) {
	access, err := d.issuer.Access(auth.AccessParams{
		Subject:        accountID,
		GrantType:      models.GrantAuthorizationCode,
		ClientID:       clientID,
		OrganizationID: organizationID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := d.issuer.Refresh(auth.RefreshParams{
		Subject:  accountID,
		JTI:      jti,
		Binding:  models.ConnectionBound{ConnectionID: connectionID},
		ClientID: clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token, Expires: access.Expires}, nil
}

// authorizationCode consumes the code, records the connection's refresh row
// and mints the pair in one transaction. Any failure rolls the code back.
func (d *GrantDispatcher) authorizationCode(ctx context.Context, req *TokenRequest) (*TokenPair, error) {
	var pair *TokenPair
	err := dbx.WithTx(ctx, d.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		consumed, err := d.broker.ConsumeAuthorizationCode(ctx, tx, req.Code, req.ClientID, req.ClientSecret)
		if err != nil {
			return err
		}
		jti, err := d.ledger.CreateConnectionRefresh(ctx, tx, consumed.AccountID, consumed.ConnectionID)
		if err != nil {
			return err
		}
		pair, err = d.connectionPair(consumed.AccountID, consumed.ClientID, consumed.OrganizationID, consumed.ConnectionID, jti)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// clientCredentials is stateless: the client itself is the subject.
func (d *GrantDispatcher) clientCredentials(ctx context.Context, req *TokenRequest) (*TokenPair, error) {
	grant, err := d.broker.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	access, err := d.issuer.Access(auth.AccessParams{
		Subject:        grant.Client.ClientID,
		GrantType:      models.GrantClientCredentials,
		ClientID:       grant.Client.ClientID,
		OrganizationID: grant.Client.OrganizationID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &TokenPair{AccessToken: access.Token, Expires: access.Expires}, nil
}

// refresh dispatches on the binding carried by the presented token. Both
// kinds rotate; the old token stops working once this returns.
func (d *GrantDispatcher) refresh(ctx context.Context, req *TokenRequest) (*TokenPair, error) {
	claims, err := d.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		return nil, common.ErrInvalidRefreshToken
	}
	binding, _ := claims.Binding()
	accountID := claims.Subject

	var pair *TokenPair
	err = dbx.WithTx(ctx, d.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		switch b := binding.(type) {
		case models.SessionBound:
			jti, err := d.ledger.RotateSession(ctx, tx, accountID, b.SessionID, claims.ID)
			if err != nil {
				return err
			}
			pair, err = d.sessionPair(accountID, b.SessionID, jti)
			return err
		case models.ConnectionBound:
			client, err := d.repomanager.Clients(tx).GetByClientID(ctx, claims.ClientID)
			if err != nil {
				return notFoundAs(err, common.ErrInvalidRefreshToken, "find client")
			}
			jti, err := d.ledger.RotateConnection(ctx, tx, b.ConnectionID, accountID, claims.ID)
			if err != nil {
				return err
			}
			pair, err = d.connectionPair(accountID, client.ClientID, client.OrganizationID, b.ConnectionID, jti)
			return err
		default:
			return common.ErrInvalidRefreshToken
		}
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidRefreshToken) {
			d.logger.Info(ctx, "refresh token rejected", "account_id", accountID, "grant", claims.GrantType.String())
		}
		return nil, err
	}
	return pair, nil
}

// Revoke deletes a connection-bound refresh row by token. Session tokens
// are ended through sign-out instead.
func (d *GrantDispatcher) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := d.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return common.ErrInvalidRefreshToken
	}
	if claims.GrantType != models.GrantAuthorizationCode {
		return common.ErrInvalidRefreshToken
	}

	live, err := d.ledger.Exists(ctx, d.db, claims.ID, claims.Subject)
	if err != nil {
		return err
	}
	if !live {
		return common.ErrConnectionRevoked
	}

	n, err := d.ledger.RevokeConnectionToken(ctx, d.db, claims.Subject, claims.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrConnectionRevoked
	}
	return nil
}
