package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

const accountColumns = `id, email, username, password_hash, email_verified_at,
		verification_token, verification_sent_at, banned_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, username, password_hash, verification_token, verification_sent_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, verification_sent_at, created_at
	`
	err := r.db.QueryRowContext(ctx, query, a.Email, a.Username, a.PasswordHash, a.VerificationToken).
		Scan(&a.ID, &a.VerificationSentAt, &a.CreatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			if strings.Contains(constraint, "username") {
				return nil, common.ErrUsernameAlreadyTaken
			}
			return nil, common.ErrEmailAlreadyTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.EmailVerifiedAt,
		&a.VerificationToken, &a.VerificationSentAt, &a.BannedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, accountID string, token string) (int64, error) {
	query := `
		UPDATE accounts
		SET verification_token = $2, verification_sent_at = now()
		WHERE id = $1 AND email_verified_at IS NULL
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, token))
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, accountID string) (int64, error) {
	query := `
		UPDATE accounts
		SET email_verified_at = now(), verification_token = NULL, verification_sent_at = NULL
		WHERE id = $1 AND email_verified_at IS NULL
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID))
}
