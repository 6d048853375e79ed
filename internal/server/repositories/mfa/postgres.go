package mfa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, accountID string) error {
	query := `INSERT INTO mfa_profiles (account_id, email_enabled) VALUES ($1, true)`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (*models.MFAProfile, error) {
	query := `
		SELECT account_id, email_enabled, email_code, email_code_sent_at, totp_secret, totp_verified_at
		FROM mfa_profiles
		WHERE account_id = $1
	`
	p := &models.MFAProfile{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&p.AccountID, &p.EmailEnabled, &p.EmailCode, &p.EmailCodeSentAt, &p.TOTPSecret, &p.TOTPVerifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) SetEmailCode(ctx context.Context, accountID string, code string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET email_code = $2, email_code_sent_at = now()
		WHERE account_id = $1
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, code))
}

func (r *PostgresRepository) ConsumeEmailCode(ctx context.Context, accountID string, code string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET email_code = NULL, email_code_sent_at = NULL
		WHERE account_id = $1 AND email_code = $2
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, code))
}

func (r *PostgresRepository) EnableEmail(ctx context.Context, accountID string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET email_enabled = true, email_code = NULL, email_code_sent_at = NULL
		WHERE account_id = $1 AND NOT email_enabled
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID))
}

func (r *PostgresRepository) DisableEmail(ctx context.Context, accountID string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET email_enabled = false, email_code = NULL, email_code_sent_at = NULL
		WHERE account_id = $1 AND email_enabled AND totp_verified_at IS NOT NULL
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID))
}

func (r *PostgresRepository) SetTOTPSecret(ctx context.Context, accountID string, secret string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET totp_secret = $2
		WHERE account_id = $1 AND totp_verified_at IS NULL
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, secret))
}

func (r *PostgresRepository) MarkTOTPVerified(ctx context.Context, accountID string, secret string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET totp_verified_at = now()
		WHERE account_id = $1 AND totp_secret = $2 AND totp_verified_at IS NULL
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, secret))
}

func (r *PostgresRepository) DisableTOTP(ctx context.Context, accountID string) (int64, error) {
	query := `
		UPDATE mfa_profiles
		SET totp_secret = NULL, totp_verified_at = NULL
		WHERE account_id = $1 AND totp_verified_at IS NOT NULL AND email_enabled
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID))
}
