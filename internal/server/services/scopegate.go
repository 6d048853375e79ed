package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
)

// ScopeGate checks bearer tokens against persisted scope grants.
type ScopeGate struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewScopeGate(db *sql.DB, m repomanager.RepositoryManager) *ScopeGate {
	return &ScopeGate{db: db, repomanager: m}
}

// RequireScopes allows the request only if every required scope is granted.
// Tokens of grants that carry no delegable scopes always pass. Required names
// are de-duplicated before counting, so repeating a name cannot make up for
// a missing one.
func (g *ScopeGate) RequireScopes(ctx context.Context, claims *auth.AccessClaims, required []string) error {
	if !claims.GrantType.CarriesScopes() {
		return nil
	}
	names := dedupe(required)
	if len(names) == 0 {
		return nil
	}

	repo := g.repomanager.Scopes(g.db)
	var (
		n   int
		err error
	)
	switch claims.GrantType {
	case models.GrantClientCredentials:
		n, err = repo.CountClientScopes(ctx, claims.ClientID, names)
	case models.GrantAuthorizationCode:
		n, err = repo.CountConnectionScopes(ctx, claims.Subject, claims.ClientID, names)
	}
	if err != nil {
		return fmt.Errorf("count scopes: %w", err)
	}
	if n != len(names) {
		return common.ErrInsufficientScopes
	}
	return nil
}
