package clients

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

func (r *PostgresRepository) GetByClientID(ctx context.Context, clientID string) (*models.Client, error) {
	query := `
		SELECT id, client_id, client_secret, name, redirect_url, organization_id
		FROM oauth2_clients
		WHERE client_id = $1
	`
	c := &models.Client{}
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(
		&c.ID, &c.ClientID, &c.ClientSecret, &c.Name, &c.RedirectURL, &c.OrganizationID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Scopes(ctx context.Context, id int64, kind models.ScopeKind) ([]models.Scope, error) {
	query := `
		SELECT s.id, s.name, s.kind
		FROM oauth2_client_scopes cs
		JOIN scopes s ON s.id = cs.scope_id
		WHERE cs.client_id = $1 AND s.kind = $2
		ORDER BY s.id
	`
	rows, err := r.db.QueryContext(ctx, query, id, string(kind))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var scopes []models.Scope
	for rows.Next() {
		var s models.Scope
		var k string
		if err := rows.Scan(&s.ID, &s.Name, &k); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		s.Kind = models.ScopeKind(k)
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scopes, nil
}
