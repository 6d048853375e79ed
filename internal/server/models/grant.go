package models

import "encoding/json"

// GrantType is the closed set of token-endpoint flows.
type GrantType int

const (
	GrantUnknown GrantType = iota
	GrantPassword
	GrantMFAChallenge
	GrantAuthorizationCode
	GrantClientCredentials
	GrantRefreshToken
)

var grantNames = map[GrantType]string{
	GrantPassword:          "password",
	GrantMFAChallenge:      "mfa_challenge",
	GrantAuthorizationCode: "authorization_code",
	GrantClientCredentials: "client_credentials",
	GrantRefreshToken:      "refresh_token",
}

func (g GrantType) String() string {
	if s, ok := grantNames[g]; ok {
		return s
	}
	return "unknown"
}

// ParseGrantType maps a wire name onto a GrantType.
func ParseGrantType(s string) (GrantType, bool) {
	for g, name := range grantNames {
		if name == s {
			return g, true
		}
	}
	return GrantUnknown, false
}

// CarriesScopes reports whether tokens of this grant are subject to scope
// checks.
func (g GrantType) CarriesScopes() bool {
	return g == GrantAuthorizationCode || g == GrantClientCredentials
}

func (g GrantType) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *GrantType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, _ := ParseGrantType(s)
	*g = parsed
	return nil
}
