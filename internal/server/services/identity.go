package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/cryptox"
	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	MaxUsernameLength = 20
	MinPasswordLength = 10
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9._]{1,%d}$`, MaxUsernameLength))
)

// IsEmail reports whether identifier is shaped like an email address.
func IsEmail(identifier string) bool {
	return emailPattern.MatchString(identifier)
}

// ValidUsername allows letters, digits, dots and underscores. A username
// must never pass IsEmail, or sign-in could not tell the two apart.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username) && !IsEmail(username)
}

// StrongPassword requires MinPasswordLength characters including a letter,
// a digit and a symbol.
func StrongPassword(password string) bool {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return false
	}
	var letter, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return letter && digit && symbol
}

type IdentityService struct {
	db                   *sql.DB
	repomanager          repomanager.RepositoryManager
	hasher               cryptox.PasswordHasher
	sender               mailer.Sender
	publicURL            string
	verificationValidity time.Duration
	now                  func() time.Time
	logger               logging.Logger
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, hasher cryptox.PasswordHasher,
	sender mailer.Sender, cfg *config.Config, logger logging.Logger) *IdentityService {
	return &IdentityService{
		db:                   db,
		repomanager:          m,
		hasher:               hasher,
		sender:               sender,
		publicURL:            strings.TrimRight(cfg.PublicURL, "/"),
		verificationValidity: cfg.VerificationValidity,
		now:                  time.Now,
		logger:               logger.With("module", "identity"),
	}
}

// Authenticate resolves identifier by email or by username, never both,
// and checks the password, ban and verification state in that order.
func (s *IdentityService) Authenticate(ctx context.Context, identifier, password string) (*models.Account, error) {
	repo := s.repomanager.Accounts(s.db)

	var (
		account *models.Account
		err     error
	)
	if IsEmail(identifier) {
		account, err = repo.GetByEmail(ctx, identifier)
	} else {
		account, err = repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, notFoundAs(err, common.ErrAccountNotFound, "find account")
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}
	if account.Banned() {
		return nil, common.ErrAccountBanned
	}
	if !account.Verified() {
		return nil, common.ErrEmailNotVerified
	}
	return account, nil
}

// SignUp creates the account together with its MFA profile (email enabled)
// and queues the verification email once both rows are committed.
func (s *IdentityService) SignUp(ctx context.Context, email, username, password string) (*models.Account, error) {
	if !IsEmail(email) {
		return nil, common.ErrInvalidEmail
	}
	if !ValidUsername(username) {
		return nil, common.ErrInvalidUsername
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token := uuid.NewString()

	account := &models.Account{
		Email:             email,
		Username:          username,
		PasswordHash:      hash,
		VerificationToken: &token,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Accounts(tx).Create(ctx, account)
		if err != nil {
			return err
		}
		account = created
		return s.repomanager.MFA(tx).Create(ctx, account.ID)
	})
	if err != nil {
		return nil, err
	}

	s.sender.Send(ctx, mailer.VerificationEmail(account.Email, s.verificationLink(account.Email, token)))
	s.logger.Info(ctx, "account created", "account_id", account.ID)
	return account, nil
}

func (s *IdentityService) verificationLink(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return s.publicURL + "/auth/verify?" + q.Encode()
}

func (s *IdentityService) VerifyEmail(ctx context.Context, email, token string) error {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return notFoundAs(err, common.ErrInvalidVerification, "find account")
	}
	if account.Verified() {
		return common.ErrEmailAlreadyVerified
	}
	if account.VerificationToken == nil ||
		subtle.ConstantTimeCompare([]byte(*account.VerificationToken), []byte(token)) != 1 {
		return common.ErrInvalidVerification
	}
	if account.VerificationSentAt != nil && s.now().After(account.VerificationSentAt.Add(s.verificationValidity)) {
		return common.ErrVerificationExpired
	}

	n, err := repo.MarkEmailVerified(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if n == 0 {
		return common.ErrEmailAlreadyVerified
	}
	return nil
}

// ResendVerification rotates the verification token and emails it again.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) error {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return notFoundAs(err, common.ErrAccountNotFound, "find account")
	}
	if account.Verified() {
		return common.ErrEmailAlreadyVerified
	}

	token := uuid.NewString()
	n, err := repo.SetVerificationToken(ctx, account.ID, token)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	if n == 0 {
		return common.ErrEmailAlreadyVerified
	}

	s.sender.Send(ctx, mailer.VerificationEmail(account.Email, s.verificationLink(account.Email, token)))
	return nil
}

func (s *IdentityService) Account(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, notFoundAs(err, common.ErrAccountNotFound, "find account")
	}
	return account, nil
}
