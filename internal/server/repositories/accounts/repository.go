// Package accounts declares the identity store contract.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts the account and fills in ID and CreatedAt. Duplicate
	// email or username yields common.ErrEmailAlreadyTaken or
	// common.ErrUsernameAlreadyTaken.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	// SetVerificationToken replaces the pending verification token of an
	// unverified account and returns the number of rows updated.
	SetVerificationToken(ctx context.Context, accountID string, token string) (int64, error)

	// MarkEmailVerified verifies an unverified account and clears its token.
	MarkEmailVerified(ctx context.Context, accountID string) (int64, error)
}
