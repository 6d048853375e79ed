// Package common contains shared constants and sentinel errors used across
// idkeeper components.
package common

// RefreshTokenCookieName is the cookie carrying a session-bound refresh token.
const RefreshTokenCookieName = "refresh_token"

// EmailCodeLength is the length of an MFA email challenge code.
const EmailCodeLength = 8

// TOTPCodeLength is the number of digits in a TOTP code.
const TOTPCodeLength = 6

// RoleAuthenticated is the role marker carried by every access token.
const RoleAuthenticated = "authenticated"
