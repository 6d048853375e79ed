// Package mfa declares storage for per-account MFA enrollment state.
//
// Every mutating method is a single conditional statement returning the
// number of rows changed, so concurrent requests against the same profile
// cannot both pass the same precondition.
package mfa

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts the default profile: email enabled, TOTP not enrolled.
	Create(ctx context.Context, accountID string) error
	Get(ctx context.Context, accountID string) (*models.MFAProfile, error)

	SetEmailCode(ctx context.Context, accountID string, code string) (int64, error)
	// ConsumeEmailCode clears the pending code only if it still equals code.
	ConsumeEmailCode(ctx context.Context, accountID string, code string) (int64, error)
	EnableEmail(ctx context.Context, accountID string) (int64, error)
	// DisableEmail succeeds only while TOTP stays enabled.
	DisableEmail(ctx context.Context, accountID string) (int64, error)

	// SetTOTPSecret stores a pending secret unless TOTP is already verified.
	SetTOTPSecret(ctx context.Context, accountID string, secret string) (int64, error)
	// MarkTOTPVerified activates the pending secret if it is still secret.
	MarkTOTPVerified(ctx context.Context, accountID string, secret string) (int64, error)
	// DisableTOTP succeeds only while email stays enabled.
	DisableTOTP(ctx context.Context, accountID string) (int64, error)
}
