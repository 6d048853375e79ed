package authcodes

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

func (r *PostgresRepository) Upsert(ctx context.Context, code *models.AuthorizationCode) error {
	query := `
		INSERT INTO oauth2_authorization_codes (code, account_id, client_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, client_id)
		DO UPDATE SET code = EXCLUDED.code, created_at = now()
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, code.Code, code.AccountID, code.ClientID).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReplaceScopes(ctx context.Context, codeID int64, scopeIDs []int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM oauth2_authorization_code_scopes WHERE code_id = $1`, codeID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	query := `INSERT INTO oauth2_authorization_code_scopes (code_id, scope_id) VALUES ($1, $2)`
	for _, id := range scopeIDs {
		if _, err := r.db.ExecContext(ctx, query, codeID, id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) FindByCredentials(ctx context.Context, code, clientID, clientSecret string) (*models.AuthorizationCode, error) {
	query := `
		SELECT ac.id, ac.code, ac.account_id, ac.client_id, c.organization_id, ac.created_at
		FROM oauth2_authorization_codes ac
		JOIN oauth2_clients c ON c.id = ac.client_id
		WHERE ac.code = $1 AND c.client_id = $2 AND c.client_secret = $3
	`
	ac := &models.AuthorizationCode{}
	err := r.db.QueryRowContext(ctx, query, code, clientID, clientSecret).Scan(
		&ac.ID, &ac.Code, &ac.AccountID, &ac.ClientID, &ac.OrganizationID, &ac.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT scope_id FROM oauth2_authorization_code_scopes WHERE code_id = $1 ORDER BY scope_id`, ac.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ac.ScopeIDs = append(ac.ScopeIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ac, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64, code string) (int64, error) {
	query := `DELETE FROM oauth2_authorization_codes WHERE id = $1 AND code = $2`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, id, code))
}
