package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

// SessionService ends and lists password sign-in sessions.
type SessionService struct {
	db     *sql.DB
	ledger *Ledger
	mfa    *MFAService
	logger logging.Logger
}

func NewSessionService(db *sql.DB, ledger *Ledger, mfa *MFAService, logger logging.Logger) *SessionService {
	return &SessionService{db: db, ledger: ledger, mfa: mfa, logger: logger.With("module", "sessions")}
}

func (s *SessionService) SignOut(ctx context.Context, accountID, sessionID string) error {
	n, err := s.ledger.Revoke(ctx, s.db, accountID, sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

// SignOutAll requires a fresh MFA answer before ending every session.
func (s *SessionService) SignOutAll(ctx context.Context, accountID string, method models.MFAMethod, code string) error {
	var n int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.mfa.ChallengeValidate(ctx, tx, accountID, method, code); err != nil {
			return err
		}
		var err error
		n, err = s.ledger.RevokeAll(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNoSessionsFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "all sessions revoked", "account_id", accountID, "count", n)
	return nil
}

func (s *SessionService) Sessions(ctx context.Context, accountID string) ([]models.Session, error) {
	return s.ledger.Sessions(ctx, accountID)
}
