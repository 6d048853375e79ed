// Package connections declares storage for durable account-to-client
// consent records and their granted scopes.
package connections

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// Find returns the connection for the pair or common.ErrorNotFound.
	Find(ctx context.Context, accountID string, clientID int64) (*models.Connection, error)
	// Upsert returns the connection for the pair, creating it if needed.
	Upsert(ctx context.Context, accountID string, clientID int64) (*models.Connection, error)
	// AddScopes unions scopeIDs into the connection's granted scopes.
	AddScopes(ctx context.Context, connectionID int64, scopeIDs []int64) error
	// Delete removes the account's connection with the given id.
	Delete(ctx context.Context, connectionID int64, accountID string) (int64, error)
}
