// Package models holds the persistent records of the identity backend.
package models

import "time"

// Account is an identity that can sign in with a password.
type Account struct {
	ID                 string
	Email              string
	Username           string
	PasswordHash       string
	EmailVerifiedAt    *time.Time
	VerificationToken  *string
	VerificationSentAt *time.Time
	BannedAt           *time.Time
	CreatedAt          time.Time
}

// Verified reports whether the account's email has been confirmed.
func (a *Account) Verified() bool { return a.EmailVerifiedAt != nil }

// Banned reports whether the account has been banned.
func (a *Account) Banned() bool { return a.BannedAt != nil }
