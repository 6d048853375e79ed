package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CodeGrant is a freshly issued authorization code.
type CodeGrant struct {
	Code    string
	Expires time.Time
}

// ConsumedCode is what a redeemed authorization code resolves to.
type ConsumedCode struct {
	AccountID      string
	ClientID       string
	OrganizationID int64
	ConnectionID   int64
	ScopeIDs       []int64
}

// ClientGrant is the result of client-credential validation.
type ClientGrant struct {
	Client *models.Client
	Scopes []string
}

// Broker runs the OAuth2 authorization-code lifecycle and client checks.
type Broker struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	codeValidity time.Duration
	now          func() time.Time
	logger       logging.Logger
}

func NewBroker(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *Broker {
	return &Broker{
		db:           db,
		repomanager:  m,
		codeValidity: cfg.AuthorizationCodeValidity,
		now:          time.Now,
		logger:       logger.With("module", "oauth2_broker"),
	}
}

// IssueAuthorizationCode records consent for the requested user scopes. When
// the account already has a connection with the client, the scopes are
// merged into it and nil is returned: no code is needed.
func (b *Broker) IssueAuthorizationCode(ctx context.Context, accountID, clientID, redirectURL string, scopes []string) (*CodeGrant, error) {
	client, err := b.repomanager.Clients(b.db).GetByClientID(ctx, clientID)
	if err != nil {
		return nil, notFoundAs(err, common.ErrClientNotFound, "find client")
	}
	if redirectURL != client.RedirectURL {
		return nil, common.ErrInvalidRedirectURL
	}

	scopeIDs, err := b.userScopeIDs(ctx, client.ID, scopes)
	if err != nil {
		return nil, err
	}

	var grant *CodeGrant
	err = dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		conn, err := b.repomanager.Connections(tx).Find(ctx, accountID, client.ID)
		if err == nil {
			return b.repomanager.Connections(tx).AddScopes(ctx, conn.ID, scopeIDs)
		}
		if err != common.ErrorNotFound {
			return fmt.Errorf("find connection: %w", err)
		}

		code := &models.AuthorizationCode{Code: uuid.NewString(), AccountID: accountID, ClientID: client.ID}
		if err := b.repomanager.AuthCodes(tx).Upsert(ctx, code); err != nil {
			return fmt.Errorf("store authorization code: %w", err)
		}
		if err := b.repomanager.AuthCodes(tx).ReplaceScopes(ctx, code.ID, scopeIDs); err != nil {
			return fmt.Errorf("store authorization code scopes: %w", err)
		}
		grant = &CodeGrant{Code: code.Code, Expires: code.ExpiresAt(b.codeValidity)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// userScopeIDs resolves requested names against the client's user scopes.
// Every requested name must be configured.
func (b *Broker) userScopeIDs(ctx context.Context, clientID int64, requested []string) ([]int64, error) {
	names := dedupe(requested)
	if len(names) == 0 {
		return nil, common.ErrInvalidScopes
	}

	allowed, err := b.repomanager.Clients(b.db).Scopes(ctx, clientID, models.ScopeKindUser)
	if err != nil {
		return nil, fmt.Errorf("load client scopes: %w", err)
	}
	byName := make(map[string]int64, len(allowed))
	for _, s := range allowed {
		byName[s.Name] = s.ID
	}

	ids := make([]int64, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, common.ErrInvalidScopes
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ConsumeAuthorizationCode redeems a code inside the caller's transaction:
// the code row and its scopes are deleted, and the connection is created or
// extended with those scopes. Of two concurrent redemptions only one
// deletes the row. An expired code is deleted outside db, since the caller
// rolls back on the error.
func (b *Broker) ConsumeAuthorizationCode(ctx context.Context, db dbx.DBTX, code, clientID, clientSecret string) (*ConsumedCode, error) {
	ac, err := b.repomanager.AuthCodes(db).FindByCredentials(ctx, code, clientID, clientSecret)
	if err != nil {
		return nil, notFoundAs(err, common.ErrInvalidAuthorizationCode, "find authorization code")
	}
	if b.now().After(ac.ExpiresAt(b.codeValidity)) {
		if _, err := b.repomanager.AuthCodes(b.db).Delete(ctx, ac.ID, ac.Code); err != nil {
			b.logger.Warn(ctx, "delete expired authorization code", "code_id", ac.ID, "error", err)
		}
		return nil, common.ErrCodeExpired
	}

	n, err := b.repomanager.AuthCodes(db).Delete(ctx, ac.ID, ac.Code)
	if err != nil {
		return nil, fmt.Errorf("delete authorization code: %w", err)
	}
	if n == 0 {
		return nil, common.ErrInvalidAuthorizationCode
	}

	conn, err := b.repomanager.Connections(db).Upsert(ctx, ac.AccountID, ac.ClientID)
	if err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}
	if err := b.repomanager.Connections(db).AddScopes(ctx, conn.ID, ac.ScopeIDs); err != nil {
		return nil, fmt.Errorf("grant connection scopes: %w", err)
	}

	return &ConsumedCode{
		AccountID:      ac.AccountID,
		ClientID:       clientID,
		OrganizationID: ac.OrganizationID,
		ConnectionID:   conn.ID,
		ScopeIDs:       ac.ScopeIDs,
	}, nil
}

// ValidateClientCredentials checks the secret and requires at least one
// client scope.
func (b *Broker) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) (*ClientGrant, error) {
	client, err := b.repomanager.Clients(b.db).GetByClientID(ctx, clientID)
	if err != nil {
		return nil, notFoundAs(err, common.ErrInvalidClientCredentials, "find client")
	}
	if subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, common.ErrInvalidClientCredentials
	}

	scopes, err := b.repomanager.Clients(b.db).Scopes(ctx, client.ID, models.ScopeKindClient)
	if err != nil {
		return nil, fmt.Errorf("load client scopes: %w", err)
	}
	if len(scopes) == 0 {
		return nil, common.ErrNoScopesSelected
	}

	names := make([]string, len(scopes))
	for i, s := range scopes {
		names[i] = s.Name
	}
	return &ClientGrant{Client: client, Scopes: names}, nil
}

// DeleteConnection removes the account's connection and its refresh row
// together.
func (b *Broker) DeleteConnection(ctx context.Context, accountID string, connectionID int64) error {
	return dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := b.repomanager.Connections(tx).Delete(ctx, connectionID, accountID)
		if err != nil {
			return fmt.Errorf("delete connection: %w", err)
		}
		if n == 0 {
			return common.ErrConnectionNotFound
		}
		if _, err := b.repomanager.RefreshTokens(tx).DeleteByConnection(ctx, connectionID); err != nil {
			return fmt.Errorf("delete connection token: %w", err)
		}
		b.logger.Info(ctx, "connection deleted", "account_id", accountID, "connection_id", connectionID)
		return nil
	})
}
