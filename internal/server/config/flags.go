package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis URL
//	-l string   log level
//	-t int      access token validity, minutes
//	-m int      MFA email code validity, minutes
//
// Long forms only:
//
//	-totp-algorithm string   SHA1, SHA256 or SHA512
//	-totp-digits int         6 or 8
//	-totp-period int         seconds per code
//
// Other flags, such as -c, are filtered out before parsing.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-r", "-l", "-t", "-m",
		"-totp-algorithm", "-totp-digits", "-totp-period"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC health address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.TOTPAlgorithm, "totp-algorithm", config.TOTPAlgorithm, "TOTP hash")
	fs.IntVar(&config.TOTPDigits, "totp-digits", config.TOTPDigits, "TOTP code length")
	fs.IntVar(&config.TOTPPeriod, "totp-period", config.TOTPPeriod, "TOTP period (in seconds)")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidity.Minutes()), "access token validity (in minutes)")
	emailCodeValidity := fs.Int("m", int(config.MFAEmailCodeValidity.Minutes()), "MFA email code validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Minute flags only apply when given, so finer JSON or env values survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidity = time.Duration(*accessTokenValidity) * time.Minute
		case "m":
			config.MFAEmailCodeValidity = time.Duration(*emailCodeValidity) * time.Minute
		}
	})
	return nil
}
