package models

import "time"

// MFAMethod names a second authentication factor.
type MFAMethod string

const (
	MFAMethodEmail MFAMethod = "email"
	MFAMethodTOTP  MFAMethod = "totp"
)

// ParseMFAMethod validates a method name received from a caller.
func ParseMFAMethod(s string) (MFAMethod, bool) {
	switch m := MFAMethod(s); m {
	case MFAMethodEmail, MFAMethodTOTP:
		return m, true
	default:
		return "", false
	}
}

// MFAProfile is the per-account MFA enrollment state. A profile always has at
// least one enabled method.
type MFAProfile struct {
	AccountID       string
	EmailEnabled    bool
	EmailCode       *string
	EmailCodeSentAt *time.Time
	TOTPSecret      *string
	TOTPVerifiedAt  *time.Time
}

// TOTPEnabled reports whether TOTP enrollment has been verified.
func (p *MFAProfile) TOTPEnabled() bool { return p.TOTPVerifiedAt != nil }

// Methods lists the enabled methods, email first.
func (p *MFAProfile) Methods() []MFAMethod {
	methods := make([]MFAMethod, 0, 2)
	if p.EmailEnabled {
		methods = append(methods, MFAMethodEmail)
	}
	if p.TOTPEnabled() {
		methods = append(methods, MFAMethodTOTP)
	}
	return methods
}

// Enabled reports whether method is currently active.
func (p *MFAProfile) Enabled(method MFAMethod) bool {
	switch method {
	case MFAMethodEmail:
		return p.EmailEnabled
	case MFAMethodTOTP:
		return p.TOTPEnabled()
	}
	return false
}

// MFAStatus is the public view of a profile.
type MFAStatus struct {
	Email bool `json:"email"`
	TOTP  bool `json:"totp"`
}
