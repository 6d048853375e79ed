// Package clients declares read access to registered OAuth2 clients.
package clients

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// GetByClientID looks a client up by its public client id.
	GetByClientID(ctx context.Context, clientID string) (*models.Client, error)
	// Scopes returns the client's configured scopes of the given kind.
	Scopes(ctx context.Context, id int64, kind models.ScopeKind) ([]models.Scope, error)
}
