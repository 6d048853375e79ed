package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/idkeeper/internal/server/totp"
)

// OTP is the time-based one-time password primitive.
type OTP interface {
	GenerateSecret() (string, error)
	ProvisionURI(secret, account string) string
	Verify(secret, code string) (bool, error)
}

// AttemptGuard throttles failed MFA answers per account.
type AttemptGuard interface {
	Check(ctx context.Context, accountID string) error
	RecordFailure(ctx context.Context, accountID string) error
	Reset(ctx context.Context, accountID string) error
}

// TOTPEnrollment is returned when TOTP enrollment begins.
type TOTPEnrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURI string `json:"otp_auth_uri"`
}

// MFAService keeps each profile in one of three states: email only, TOTP
// only, or both. Every disable is a conditional update that also requires
// the other method, so the profile never ends up with neither.
type MFAService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	otp          OTP
	sender       mailer.Sender
	attempts     AttemptGuard
	codeValidity time.Duration
	now          func() time.Time
	logger       logging.Logger
}

var _ OTP = (*totp.Generator)(nil)

func NewMFAService(db *sql.DB, m repomanager.RepositoryManager, otp OTP, sender mailer.Sender,
	attempts AttemptGuard, cfg *config.Config, logger logging.Logger) *MFAService {
	return &MFAService{
		db:           db,
		repomanager:  m,
		otp:          otp,
		sender:       sender,
		attempts:     attempts,
		codeValidity: cfg.MFAEmailCodeValidity,
		now:          time.Now,
		logger:       logger.With("module", "mfa"),
	}
}

func (s *MFAService) profile(ctx context.Context, db dbx.DBTX, accountID string) (*models.MFAProfile, error) {
	p, err := s.repomanager.MFA(db).Get(ctx, accountID)
	if err != nil {
		return nil, notFoundAs(err, common.ErrAccountNotFound, "load mfa profile")
	}
	return p, nil
}

func (s *MFAService) Status(ctx context.Context, accountID string) (*models.MFAStatus, error) {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	return &models.MFAStatus{Email: p.EmailEnabled, TOTP: p.TOTPEnabled()}, nil
}

// Methods lists the enabled methods; never empty for a valid profile.
func (s *MFAService) Methods(ctx context.Context, accountID string) ([]models.MFAMethod, error) {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	return p.Methods(), nil
}

// BeginTOTPEnrollment stores a fresh pending secret. It stays inactive until
// VerifyTOTPEnrollment succeeds; calling again replaces it.
func (s *MFAService) BeginTOTPEnrollment(ctx context.Context, accountID, label string) (*TOTPEnrollment, error) {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if p.TOTPEnabled() {
		return nil, common.ErrTOTPAlreadyEnabled
	}

	secret, err := s.otp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	n, err := s.repomanager.MFA(s.db).SetTOTPSecret(ctx, accountID, secret)
	if err != nil {
		return nil, fmt.Errorf("store totp secret: %w", err)
	}
	if n == 0 {
		return nil, common.ErrTOTPAlreadyEnabled
	}
	return &TOTPEnrollment{Secret: secret, OTPAuthURI: s.otp.ProvisionURI(secret, label)}, nil
}

func (s *MFAService) VerifyTOTPEnrollment(ctx context.Context, accountID, code string) error {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if p.TOTPEnabled() {
		return common.ErrTOTPAlreadyVerified
	}
	if p.TOTPSecret == nil {
		return common.ErrTOTPNotEnrolled
	}
	if err := s.checkTOTP(*p.TOTPSecret, code); err != nil {
		return err
	}

	n, err := s.repomanager.MFA(s.db).MarkTOTPVerified(ctx, accountID, *p.TOTPSecret)
	if err != nil {
		return fmt.Errorf("mark totp verified: %w", err)
	}
	if n == 0 {
		// Verified concurrently, or the pending secret was replaced.
		return common.ErrTOTPAlreadyVerified
	}
	s.logger.Info(ctx, "totp enabled", "account_id", accountID)
	return nil
}

func (s *MFAService) DisableTOTP(ctx context.Context, accountID, code string) error {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if !p.TOTPEnabled() {
		return common.ErrTOTPAlreadyDisabled
	}
	if !p.EmailEnabled {
		return common.ErrLastMFAMethod
	}
	if err := s.checkTOTP(*p.TOTPSecret, code); err != nil {
		return err
	}

	n, err := s.repomanager.MFA(s.db).DisableTOTP(ctx, accountID)
	if err != nil {
		return fmt.Errorf("disable totp: %w", err)
	}
	if n == 0 {
		return common.ErrLastMFAMethod
	}
	s.logger.Info(ctx, "totp disabled", "account_id", accountID)
	return nil
}

// RequestEmailCode stores a new email code, replacing any pending one, and
// returns it for delivery.
func (s *MFAService) RequestEmailCode(ctx context.Context, accountID string) (string, error) {
	code, err := common.GenerateCode(common.EmailCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	n, err := s.repomanager.MFA(s.db).SetEmailCode(ctx, accountID, code)
	if err != nil {
		return "", fmt.Errorf("store email code: %w", err)
	}
	if n == 0 {
		return "", common.ErrAccountNotFound
	}
	return code, nil
}

// SendEmailCode issues a code and queues it to the account's address.
func (s *MFAService) SendEmailCode(ctx context.Context, account *models.Account) error {
	code, err := s.RequestEmailCode(ctx, account.ID)
	if err != nil {
		return err
	}
	s.sender.Send(ctx, mailer.MFACodeEmail(account.Email, code))
	return nil
}

func (s *MFAService) EnableEmail(ctx context.Context, accountID, code string) error {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if p.EmailEnabled {
		return common.ErrEmailMFAAlreadyEnabled
	}
	if err := s.checkEmailCode(p, code); err != nil {
		return err
	}

	n, err := s.repomanager.MFA(s.db).EnableEmail(ctx, accountID)
	if err != nil {
		return fmt.Errorf("enable email mfa: %w", err)
	}
	if n == 0 {
		return common.ErrEmailMFAAlreadyEnabled
	}
	return nil
}

func (s *MFAService) DisableEmail(ctx context.Context, accountID, code string) error {
	p, err := s.profile(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if !p.EmailEnabled {
		return common.ErrEmailMFAAlreadyDisabled
	}
	if !p.TOTPEnabled() {
		return common.ErrLastMFAMethod
	}
	if err := s.checkEmailCode(p, code); err != nil {
		return err
	}

	n, err := s.repomanager.MFA(s.db).DisableEmail(ctx, accountID)
	if err != nil {
		return fmt.Errorf("disable email mfa: %w", err)
	}
	if n == 0 {
		return common.ErrLastMFAMethod
	}
	return nil
}

// ChallengeValidate checks a sign-in answer for method. Enrollment state is
// left alone; a matching email code is consumed so it cannot be replayed.
// Failed answers count against the account's attempt budget.
func (s *MFAService) ChallengeValidate(ctx context.Context, db dbx.DBTX, accountID string, method models.MFAMethod, code string) error {
	if s.attempts != nil {
		if err := s.attempts.Check(ctx, accountID); err != nil {
			if errors.Is(err, common.ErrTooManyMFAAttempts) {
				return err
			}
			s.logger.Warn(ctx, "mfa attempt limiter unavailable", "error", err)
		}
	}

	err := s.challengeValidate(ctx, db, accountID, method, code)
	if s.attempts != nil {
		var aerr error
		switch {
		case err == nil:
			aerr = s.attempts.Reset(ctx, accountID)
		case errors.Is(err, common.ErrInvalidCode), errors.Is(err, common.ErrCodeExpired):
			aerr = s.attempts.RecordFailure(ctx, accountID)
		}
		if aerr != nil {
			s.logger.Warn(ctx, "mfa attempt limiter unavailable", "error", aerr)
		}
	}
	return err
}

func (s *MFAService) challengeValidate(ctx context.Context, db dbx.DBTX, accountID string, method models.MFAMethod, code string) error {
	p, err := s.profile(ctx, db, accountID)
	if err != nil {
		return err
	}

	switch method {
	case models.MFAMethodTOTP:
		if !p.TOTPEnabled() {
			return common.ErrTOTPMFADisabled
		}
		return s.checkTOTP(*p.TOTPSecret, code)
	case models.MFAMethodEmail:
		if !p.EmailEnabled {
			return common.ErrEmailMFADisabled
		}
		code = normalizeEmailCode(code)
		if err := s.checkEmailCode(p, code); err != nil {
			return err
		}
		n, err := s.repomanager.MFA(db).ConsumeEmailCode(ctx, accountID, code)
		if err != nil {
			return fmt.Errorf("consume email code: %w", err)
		}
		if n == 0 {
			return common.ErrInvalidCode
		}
		return nil
	default:
		return common.ErrUnsupportedMFAMethod
	}
}

func (s *MFAService) checkTOTP(secret, code string) error {
	ok, err := s.otp.Verify(secret, code)
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}
	if !ok {
		return common.ErrInvalidCode
	}
	return nil
}

// normalizeEmailCode upper-cases input so a code typed in lower case still
// matches the stored hex.
func normalizeEmailCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *MFAService) checkEmailCode(p *models.MFAProfile, code string) error {
	code = normalizeEmailCode(code)
	if p.EmailCode == nil || subtle.ConstantTimeCompare([]byte(*p.EmailCode), []byte(code)) != 1 {
		return common.ErrInvalidCode
	}
	if p.EmailCodeSentAt == nil || s.now().After(p.EmailCodeSentAt.Add(s.codeValidity)) {
		return common.ErrCodeExpired
	}
	return nil
}
