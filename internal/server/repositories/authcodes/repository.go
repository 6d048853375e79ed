// Package authcodes declares storage for single-use OAuth2 authorization
// codes and the scopes each one carries.
package authcodes

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// Upsert stores code for the (account, client) pair, overwriting any
	// previous code. ID and CreatedAt are filled from the stored row.
	Upsert(ctx context.Context, code *models.AuthorizationCode) error
	// ReplaceScopes sets the scopes carried by the code with id codeID.
	ReplaceScopes(ctx context.Context, codeID int64, scopeIDs []int64) error
	// FindByCredentials returns the code only if the client's public id and
	// secret both match.
	FindByCredentials(ctx context.Context, code, clientID, clientSecret string) (*models.AuthorizationCode, error)
	// Delete removes the code row and, by cascade, its scopes. It reports
	// zero rows when the code was already consumed or replaced.
	Delete(ctx context.Context, id int64, code string) (int64, error)
}
