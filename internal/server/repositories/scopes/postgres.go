package scopes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CountClientScopes(ctx context.Context, clientID string, names []string) (int, error) {
	query := `
		SELECT count(*)
		FROM oauth2_clients c
		JOIN oauth2_client_scopes cs ON cs.client_id = c.id
		JOIN scopes s ON s.id = cs.scope_id
		WHERE c.client_id = $1 AND s.kind = 'client' AND s.name = ANY($2)
	`
	return r.count(ctx, query, clientID, names)
}

func (r *PostgresRepository) CountConnectionScopes(ctx context.Context, accountID string, clientID string, names []string) (int, error) {
	query := `
		SELECT count(*)
		FROM oauth2_connections cn
		JOIN oauth2_clients c ON c.id = cn.client_id
		JOIN oauth2_connection_scopes cns ON cns.connection_id = cn.id
		JOIN scopes s ON s.id = cns.scope_id
		WHERE cn.account_id = $1 AND c.client_id = $2 AND s.name = ANY($3)
	`
	return r.count(ctx, query, accountID, clientID, names)
}

func (r *PostgresRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
