// Package refreshtokens declares the refresh-credential ledger. A row's
// presence is what keeps a refresh token alive; rotation and revocation
// are conditional statements whose affected-row count decides the outcome.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// Create persists a credential with a session or connection binding.
	Create(ctx context.Context, cred *models.RefreshCredential) error
	// Exists reports whether token is live for accountID.
	Exists(ctx context.Context, token string, accountID string) (bool, error)

	// DeleteSessionToken removes the row matching all three values.
	DeleteSessionToken(ctx context.Context, accountID, sessionID, token string) (int64, error)
	// UpdateConnectionToken swaps oldToken for newToken on a connection row.
	UpdateConnectionToken(ctx context.Context, connectionID int64, accountID, oldToken, newToken string) (int64, error)

	DeleteSession(ctx context.Context, accountID, sessionID string) (int64, error)
	DeleteAllSessions(ctx context.Context, accountID string) (int64, error)
	ListSessions(ctx context.Context, accountID string) ([]models.Session, error)

	DeleteByConnection(ctx context.Context, connectionID int64) (int64, error)
	// DeleteConnectionToken revokes a connection-bound token by value.
	DeleteConnectionToken(ctx context.Context, accountID, token string) (int64, error)
}
