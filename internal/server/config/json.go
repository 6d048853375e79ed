package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
	"github.com/dmitrijs2005/idkeeper/internal/timex"
)

// JSONConfig is the on-disk shape of the config file. Durations accept both
// "90s" strings and integer nanoseconds. Absent keys keep their previous
// value.
type JSONConfig struct {
	HTTPAddr    string `json:"http_addr"`
	GRPCAddr    string `json:"grpc_addr"`
	DatabaseDSN string `json:"database_dsn"`
	RedisURL    string `json:"redis_url"`
	PublicURL   string `json:"public_url"`

	Issuer   string `json:"issuer"`
	Audience string `json:"audience"`

	AccessTokenSecret  string `json:"access_token_secret"`
	RefreshTokenSecret string `json:"refresh_token_secret"`
	MFATokenSecret     string `json:"mfa_token_secret"`

	AccessTokenValidity       timex.Duration `json:"access_token_validity"`
	ClientAccessTokenValidity timex.Duration `json:"client_access_token_validity"`
	MFATokenValidity          timex.Duration `json:"mfa_token_validity"`
	AuthorizationCodeValidity timex.Duration `json:"authorization_code_validity"`
	MFAEmailCodeValidity      timex.Duration `json:"mfa_email_code_validity"`
	VerificationValidity      timex.Duration `json:"verification_validity"`

	TOTPIssuer        string `json:"totp_issuer"`
	TOTPAlgorithm     string `json:"totp_algorithm"`
	TOTPDigits        int    `json:"totp_digits"`
	TOTPPeriod        int    `json:"totp_period"`
	RefreshCookiePath string `json:"refresh_cookie_path"`
	CookieSecure      *bool  `json:"cookie_secure"`

	RateLimitRequests int            `json:"rate_limit_requests"`
	RateLimitWindow   timex.Duration `json:"rate_limit_window"`
	MFAAttemptLimit   int            `json:"mfa_attempt_limit"`
	MFAAttemptWindow  timex.Duration `json:"mfa_attempt_window"`

	EmailStream     string `json:"email_stream"`
	EmailBufferSize int    `json:"email_buffer_size"`

	BcryptCost int    `json:"bcrypt_cost"`
	LogLevel   string `json:"log_level"`
}

// parseJSON overlays the file given with -c or -config onto config. No flag
// means no file.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.PublicURL, c.PublicURL)
	setString(&config.Issuer, c.Issuer)
	setString(&config.Audience, c.Audience)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.MFATokenSecret, c.MFATokenSecret)
	setString(&config.TOTPIssuer, c.TOTPIssuer)
	setString(&config.TOTPAlgorithm, c.TOTPAlgorithm)
	setString(&config.RefreshCookiePath, c.RefreshCookiePath)
	setString(&config.EmailStream, c.EmailStream)
	setString(&config.LogLevel, c.LogLevel)

	setDuration(&config.AccessTokenValidity, c.AccessTokenValidity)
	setDuration(&config.ClientAccessTokenValidity, c.ClientAccessTokenValidity)
	setDuration(&config.MFATokenValidity, c.MFATokenValidity)
	setDuration(&config.AuthorizationCodeValidity, c.AuthorizationCodeValidity)
	setDuration(&config.MFAEmailCodeValidity, c.MFAEmailCodeValidity)
	setDuration(&config.VerificationValidity, c.VerificationValidity)
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setDuration(&config.MFAAttemptWindow, c.MFAAttemptWindow)

	setInt(&config.RateLimitRequests, c.RateLimitRequests)
	setInt(&config.MFAAttemptLimit, c.MFAAttemptLimit)
	setInt(&config.EmailBufferSize, c.EmailBufferSize)
	setInt(&config.BcryptCost, c.BcryptCost)
	setInt(&config.TOTPDigits, c.TOTPDigits)
	setInt(&config.TOTPPeriod, c.TOTPPeriod)

	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
