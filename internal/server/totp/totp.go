// Package totp wraps github.com/pquerna/otp for MFA enrollment and
// challenges. Defaults match what Google Authenticator and most other apps
// assume: SHA1, six digits, a 30 second period.
package totp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultAlgorithm = "SHA1"
	DefaultPeriod    = 30

	secretBytes = 20
	// Label for keys generated only for their secret.
	placeholderAccount = "enrollment"
)

var (
	ErrEmptySecret          = errors.New("empty totp secret")
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
	ErrUnsupportedDigits    = errors.New("unsupported totp digits")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type Config struct {
	Issuer    string
	Algorithm string
	Digits    int
	Period    int
	// Skew is the number of periods accepted on either side of now.
	Skew int
}

// DefaultConfig: SHA1, 6 digits, 30 second period, one step of skew.
func DefaultConfig(issuer string) Config {
	return Config{Issuer: issuer, Algorithm: DefaultAlgorithm, Digits: common.TOTPCodeLength, Period: DefaultPeriod, Skew: 1}
}

// ParseAlgorithm maps a config name onto the library constant. Only the
// RFC 6238 hashes are accepted.
func ParseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// ParseDigits accepts the two code lengths authenticator apps support.
func ParseDigits(n int) (otp.Digits, error) {
	switch n {
	case 6:
		return otp.DigitsSix, nil
	case 8:
		return otp.DigitsEight, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedDigits, n)
	}
}

type Generator struct {
	config Config
	now    func() time.Time
}

func New(cfg Config) *Generator {
	if cfg.Issuer == "" {
		cfg.Issuer = "idkeeper"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	if cfg.Digits == 0 {
		cfg.Digits = common.TOTPCodeLength
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	return &Generator{config: cfg, now: time.Now}
}

func (g *Generator) opts() (totp.ValidateOpts, error) {
	alg, err := ParseAlgorithm(g.config.Algorithm)
	if err != nil {
		return totp.ValidateOpts{}, err
	}
	digits, err := ParseDigits(g.config.Digits)
	if err != nil {
		return totp.ValidateOpts{}, err
	}
	return totp.ValidateOpts{
		Period:    uint(g.config.Period),
		Skew:      uint(g.config.Skew),
		Digits:    digits,
		Algorithm: alg,
	}, nil
}

func (g *Generator) key(secret []byte, account string) (*otp.Key, error) {
	o, err := g.opts()
	if err != nil {
		return nil, err
	}
	return totp.Generate(totp.GenerateOpts{
		Issuer:      g.config.Issuer,
		AccountName: account,
		Period:      o.Period,
		SecretSize:  secretBytes,
		Secret:      secret,
		Digits:      o.Digits,
		Algorithm:   o.Algorithm,
	})
}

// GenerateSecret returns a fresh base32 secret without padding.
func (g *Generator) GenerateSecret() (string, error) {
	k, err := g.key(nil, placeholderAccount)
	if err != nil {
		return "", err
	}
	return k.Secret(), nil
}

// ProvisionURI builds the otpauth:// URI authenticator apps scan. It returns
// "" when secret is not valid base32.
func (g *Generator) ProvisionURI(secret, account string) string {
	raw, err := decodeSecret(secret)
	if err != nil {
		return ""
	}
	defer common.WipeByteArray(raw)

	k, err := g.key(raw, account)
	if err != nil {
		return ""
	}
	return k.URL()
}

// Verify checks code against the base32 secret at the current time.
func (g *Generator) Verify(secret, code string) (bool, error) {
	return g.VerifyAt(secret, code, g.now())
}

func (g *Generator) VerifyAt(secret, code string, at time.Time) (bool, error) {
	o, err := g.opts()
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(secret) == "" {
		return false, ErrEmptySecret
	}

	// Wrong length or non-digits is a plain mismatch, not an error.
	code = strings.TrimSpace(code)
	if len(code) != o.Digits.Length() || !numeric(code) {
		return false, nil
	}

	ok, err := totp.ValidateCustom(code, canonical(secret), at.UTC(), o)
	if err != nil {
		return false, fmt.Errorf("validate totp: %w", err)
	}
	return ok, nil
}

// CodeAt returns the code valid for the period containing at.
func (g *Generator) CodeAt(secret string, at time.Time) (string, error) {
	o, err := g.opts()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(secret) == "" {
		return "", ErrEmptySecret
	}
	return totp.GenerateCodeCustom(canonical(secret), at.UTC(), o)
}

func canonical(secret string) string {
	return strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
}

func decodeSecret(secret string) ([]byte, error) {
	secret = canonical(secret)
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := encoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return key, nil
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
