package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	// Six digits by default, eight when the deployment configures it.
	totpCodePattern  = regexp.MustCompile(fmt.Sprintf(`^(?:[0-9]{%d}|[0-9]{8})$`, common.TOTPCodeLength))
	emailCodePattern = regexp.MustCompile(fmt.Sprintf(`^[0-9A-Za-z]{%d}$`, common.EmailCodeLength))
)

type tokenBody struct {
	Identifier   string `json:"identifier"`
	Password     string `json:"password"`
	Token        string `json:"token"`
	Type         string `json:"type"`
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expires      time.Time `json:"expires"`
}

// bindOptionalJSON decodes the body when there is one.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		abortWithValidation(c, badBody())
		return false
	}
	return true
}

// Token is the token endpoint: POST /auth/token?grant_type=...
func (h *Handler) Token(c *gin.Context) {
	raw := c.Query("grant_type")
	if raw == "" {
		abortWithValidation(c, required("GRANT_TYPE_REQUIRED", inQuery, "grant_type"))
		return
	}
	grant, ok := models.ParseGrantType(raw)
	if !ok {
		abortWithValidation(c, invalid("INVALID_GRANT_TYPE", inQuery, "grant_type"))
		return
	}

	var body tokenBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	req, ok := h.tokenRequest(c, grant, &body)
	if !ok {
		return
	}

	res, err := h.grants.Dispatch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	if res.Challenge != nil {
		c.JSON(http.StatusOK, res.Challenge)
		return
	}

	pair := res.Tokens
	out := tokenResponse{AccessToken: pair.AccessToken, TokenType: "bearer", Expires: pair.Expires}
	if pair.SessionBound {
		h.setRefreshCookie(c, pair.RefreshToken)
	} else {
		out.RefreshToken = pair.RefreshToken
	}
	c.JSON(http.StatusOK, out)
}

// tokenRequest validates the fields the grant needs. It writes the
// validation response itself and reports false on failure.
func (h *Handler) tokenRequest(c *gin.Context, grant models.GrantType, b *tokenBody) (*services.TokenRequest, bool) {
	req := &services.TokenRequest{GrantType: grant}

	switch grant {
	case models.GrantPassword:
		var errs []fieldError
		if b.Identifier == "" {
			errs = append(errs, required("CREDENTIALS_REQUIRED", inBody, "identifier"))
		}
		if b.Password == "" {
			errs = append(errs, required("CREDENTIALS_REQUIRED", inBody, "password"))
		}
		if len(errs) > 0 {
			abortWithValidation(c, errs...)
			return nil, false
		}
		req.Identifier, req.Password = b.Identifier, b.Password

	case models.GrantMFAChallenge:
		if b.Token == "" {
			h.fail(c, common.ErrInvalidToken)
			return nil, false
		}
		method, ok := models.ParseMFAMethod(b.Type)
		if !ok {
			abortWithValidation(c, invalid("UNSUPPORTED_MFA_METHOD", inBody, "type"))
			return nil, false
		}
		if !validCode(c, method, b.Code) {
			return nil, false
		}
		req.ChallengeToken, req.Method, req.Code = b.Token, method, b.Code

	case models.GrantAuthorizationCode:
		var errs []fieldError
		switch {
		case b.Code == "":
			errs = append(errs, required("CODE_REQUIRED", inBody, "code"))
		case uuid.Validate(b.Code) != nil:
			errs = append(errs, invalid("INVALID_AUTHORIZATION_CODE", inBody, "code"))
		}
		errs = append(errs, clientFieldErrors(b)...)
		if len(errs) > 0 {
			abortWithValidation(c, errs...)
			return nil, false
		}
		req.Code, req.ClientID, req.ClientSecret = b.Code, b.ClientID, b.ClientSecret

	case models.GrantClientCredentials:
		if errs := clientFieldErrors(b); len(errs) > 0 {
			abortWithValidation(c, errs...)
			return nil, false
		}
		req.ClientID, req.ClientSecret = b.ClientID, b.ClientSecret

	case models.GrantRefreshToken:
		token := b.RefreshToken
		if cookie, err := c.Cookie(common.RefreshTokenCookieName); err == nil && cookie != "" {
			token = cookie
		}
		if token == "" {
			abortWithValidation(c, required("REFRESH_TOKEN_REQUIRED", inCookie, common.RefreshTokenCookieName))
			return nil, false
		}
		req.RefreshToken = token
	}
	return req, true
}

func clientFieldErrors(b *tokenBody) []fieldError {
	var errs []fieldError
	switch {
	case b.ClientID == "":
		errs = append(errs, required("CLIENT_ID_REQUIRED", inBody, "client_id"))
	case uuid.Validate(b.ClientID) != nil:
		errs = append(errs, invalid("INVALID_CLIENT_CREDENTIALS", inBody, "client_id"))
	}
	if b.ClientSecret == "" {
		errs = append(errs, required("CREDENTIALS_REQUIRED", inBody, "client_secret"))
	}
	return errs
}

// validCode checks the code shape for method: six or eight digits for TOTP,
// eight alphanumerics for email.
func validCode(c *gin.Context, method models.MFAMethod, code string) bool {
	if code == "" {
		abortWithValidation(c, required("CODE_REQUIRED", inBody, "code"))
		return false
	}
	pattern := emailCodePattern
	if method == models.MFAMethodTOTP {
		pattern = totpCodePattern
	}
	if !pattern.MatchString(code) {
		abortWithValidation(c, invalid("INVALID_CODE", inBody, "code"))
		return false
	}
	return true
}

// Revoke deletes a connection-bound refresh token: DELETE /auth/oauth2/revoke.
func (h *Handler) Revoke(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !bindOptionalJSON(c, &body) {
		return
	}
	if body.RefreshToken == "" {
		abortWithValidation(c, required("REFRESH_TOKEN_REQUIRED", inBody, "refresh_token"))
		return
	}
	if err := h.grants.Revoke(c.Request.Context(), body.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
