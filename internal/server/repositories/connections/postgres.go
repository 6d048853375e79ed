package connections

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

func (r *PostgresRepository) Find(ctx context.Context, accountID string, clientID int64) (*models.Connection, error) {
	query := `
		SELECT id, account_id, client_id, created_at
		FROM oauth2_connections
		WHERE account_id = $1 AND client_id = $2
	`
	c := &models.Connection{}
	err := r.db.QueryRowContext(ctx, query, accountID, clientID).Scan(&c.ID, &c.AccountID, &c.ClientID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// Upsert relies on the no-op DO UPDATE so that RETURNING yields the row
// even when it already existed.
func (r *PostgresRepository) Upsert(ctx context.Context, accountID string, clientID int64) (*models.Connection, error) {
	query := `
		INSERT INTO oauth2_connections (account_id, client_id)
		VALUES ($1, $2)
		ON CONFLICT (account_id, client_id)
		DO UPDATE SET account_id = EXCLUDED.account_id
		RETURNING id, created_at
	`
	c := &models.Connection{AccountID: accountID, ClientID: clientID}
	if err := r.db.QueryRowContext(ctx, query, accountID, clientID).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) AddScopes(ctx context.Context, connectionID int64, scopeIDs []int64) error {
	query := `
		INSERT INTO oauth2_connection_scopes (connection_id, scope_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	for _, id := range scopeIDs {
		if _, err := r.db.ExecContext(ctx, query, connectionID, id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, connectionID int64, accountID string) (int64, error) {
	query := `DELETE FROM oauth2_connections WHERE id = $1 AND account_id = $2`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, connectionID, accountID))
}
