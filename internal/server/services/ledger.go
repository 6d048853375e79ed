package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Ledger records outstanding refresh credentials. Methods that take a
// dbx.DBTX are meant to run inside the caller's transaction, next to the
// token minting they back.
type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewLedger(db *sql.DB, m repomanager.RepositoryManager) *Ledger {
	return &Ledger{db: db, repomanager: m}
}

// CreateSession opens a new sign-in session with its first refresh row.
func (l *Ledger) CreateSession(ctx context.Context, db dbx.DBTX, accountID string) (sessionID, jti string, err error) {
	sessionID = uuid.NewString()
	jti = uuid.NewString()
	err = l.repomanager.RefreshTokens(db).Create(ctx, &models.RefreshCredential{
		Token:     jti,
		AccountID: accountID,
		Binding:   models.SessionBound{SessionID: sessionID},
	})
	if err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, jti, nil
}

// RotateSession deletes the row holding oldJTI and inserts its successor
// under the same session. Only one of several concurrent rotations of the
// same token can delete the row; the rest get ErrInvalidRefreshToken.
func (l *Ledger) RotateSession(ctx context.Context, db dbx.DBTX, accountID, sessionID, oldJTI string) (string, error) {
	repo := l.repomanager.RefreshTokens(db)

	n, err := repo.DeleteSessionToken(ctx, accountID, sessionID, oldJTI)
	if err != nil {
		return "", fmt.Errorf("delete session token: %w", err)
	}
	if n == 0 {
		return "", common.ErrInvalidRefreshToken
	}

	jti := uuid.NewString()
	err = repo.Create(ctx, &models.RefreshCredential{
		Token:     jti,
		AccountID: accountID,
		Binding:   models.SessionBound{SessionID: sessionID},
	})
	if err != nil {
		return "", fmt.Errorf("create session token: %w", err)
	}
	return jti, nil
}

// CreateConnectionRefresh gives a connection its single live refresh row,
// replacing one left from an earlier authorization.
func (l *Ledger) CreateConnectionRefresh(ctx context.Context, db dbx.DBTX, accountID string, connectionID int64) (string, error) {
	repo := l.repomanager.RefreshTokens(db)

	if _, err := repo.DeleteByConnection(ctx, connectionID); err != nil {
		return "", fmt.Errorf("clear connection token: %w", err)
	}

	jti := uuid.NewString()
	err := repo.Create(ctx, &models.RefreshCredential{
		Token:     jti,
		AccountID: accountID,
		Binding:   models.ConnectionBound{ConnectionID: connectionID},
	})
	if err != nil {
		return "", fmt.Errorf("create connection token: %w", err)
	}
	return jti, nil
}

// RotateConnection swaps the connection's token in place.
func (l *Ledger) RotateConnection(ctx context.Context, db dbx.DBTX, connectionID int64, accountID, oldJTI string) (string, error) {
	jti := uuid.NewString()
	n, err := l.repomanager.RefreshTokens(db).UpdateConnectionToken(ctx, connectionID, accountID, oldJTI, jti)
	if err != nil {
		return "", fmt.Errorf("rotate connection token: %w", err)
	}
	if n == 0 {
		return "", common.ErrInvalidRefreshToken
	}
	return jti, nil
}

func (l *Ledger) Exists(ctx context.Context, db dbx.DBTX, jti, accountID string) (bool, error) {
	ok, err := l.repomanager.RefreshTokens(db).Exists(ctx, jti, accountID)
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

// Revoke ends one session. Zero means there was nothing to revoke.
func (l *Ledger) Revoke(ctx context.Context, db dbx.DBTX, accountID, sessionID string) (int64, error) {
	n, err := l.repomanager.RefreshTokens(db).DeleteSession(ctx, accountID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke session: %w", err)
	}
	return n, nil
}

// RevokeAll ends every sign-in session of the account. Connection-bound
// rows are left alone.
func (l *Ledger) RevokeAll(ctx context.Context, db dbx.DBTX, accountID string) (int64, error) {
	n, err := l.repomanager.RefreshTokens(db).DeleteAllSessions(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return n, nil
}

func (l *Ledger) RevokeConnectionToken(ctx context.Context, db dbx.DBTX, accountID, jti string) (int64, error) {
	n, err := l.repomanager.RefreshTokens(db).DeleteConnectionToken(ctx, accountID, jti)
	if err != nil {
		return 0, fmt.Errorf("revoke connection token: %w", err)
	}
	return n, nil
}

func (l *Ledger) Sessions(ctx context.Context, accountID string) ([]models.Session, error) {
	sessions, err := l.repomanager.RefreshTokens(l.db).ListSessions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
