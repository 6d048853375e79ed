package refreshtokens

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

// PostgresRepository implements the ledger over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts cred. The binding decides which of session_id and
// connection_id is populated; the other column stays NULL.
func (r *PostgresRepository) Create(ctx context.Context, cred *models.RefreshCredential) error {
	var sessionID, connectionID any
	switch b := cred.Binding.(type) {
	case models.SessionBound:
		sessionID = b.SessionID
	case models.ConnectionBound:
		connectionID = b.ConnectionID
	default:
		return fmt.Errorf("unsupported refresh binding %T", cred.Binding)
	}

	query := `
		INSERT INTO refresh_tokens (token, account_id, grant_type, session_id, connection_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	grant := models.OriginGrant(cred.Binding).String()
	if _, err := r.db.ExecContext(ctx, query, cred.Token, cred.AccountID, grant, sessionID, connectionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, token string, accountID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = $1 AND account_id = $2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, token, accountID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) DeleteSessionToken(ctx context.Context, accountID, sessionID, token string) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE account_id = $1 AND session_id = $2 AND token = $3
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, sessionID, token))
}

func (r *PostgresRepository) UpdateConnectionToken(ctx context.Context, connectionID int64, accountID, oldToken, newToken string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET token = $4, updated_at = now()
		WHERE connection_id = $1 AND account_id = $2 AND token = $3
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, connectionID, accountID, oldToken, newToken))
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, accountID, sessionID string) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE account_id = $1 AND session_id = $2`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, sessionID))
}

func (r *PostgresRepository) DeleteAllSessions(ctx context.Context, accountID string) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE account_id = $1 AND session_id IS NOT NULL`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID))
}

func (r *PostgresRepository) ListSessions(ctx context.Context, accountID string) ([]models.Session, error) {
	query := `
		SELECT session_id, created_at
		FROM refresh_tokens
		WHERE account_id = $1 AND session_id IS NOT NULL
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.SessionID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sessions, nil
}

func (r *PostgresRepository) DeleteByConnection(ctx context.Context, connectionID int64) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE connection_id = $1`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, connectionID))
}

func (r *PostgresRepository) DeleteConnectionToken(ctx context.Context, accountID, token string) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE account_id = $1 AND token = $2 AND connection_id IS NOT NULL
	`
	return dbx.RowsAffected(r.db.ExecContext(ctx, query, accountID, token))
}
