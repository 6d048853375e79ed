package httpapi

import (
	"net/http"
	"slices"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

func (h *Handler) MFAStatus(c *gin.Context) {
	claims, _ := AccessClaims(c)
	status, err := h.mfa.Status(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// EnableMFA starts TOTP enrollment, or turns email on given a sent code.
func (h *Handler) EnableMFA(c *gin.Context) {
	var body struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithValidation(c, badBody())
		return
	}
	method, ok := models.ParseMFAMethod(body.Type)
	if !ok {
		abortWithValidation(c, invalid("UNSUPPORTED_MFA_METHOD", inBody, "type"))
		return
	}

	ctx := c.Request.Context()
	claims, _ := AccessClaims(c)

	if method == models.MFAMethodTOTP {
		account, err := h.identity.Account(ctx, claims.Subject)
		if err != nil {
			h.fail(c, err)
			return
		}
		enrollment, err := h.mfa.BeginTOTPEnrollment(ctx, claims.Subject, account.Email)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, enrollment)
		return
	}

	if !validCode(c, method, body.Code) {
		return
	}
	if err := h.mfa.EnableEmail(ctx, claims.Subject, body.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VerifyTOTP activates a pending TOTP enrollment.
func (h *Handler) VerifyTOTP(c *gin.Context) {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithValidation(c, badBody())
		return
	}
	if !validCode(c, models.MFAMethodTOTP, body.Code) {
		return
	}
	claims, _ := AccessClaims(c)
	if err := h.mfa.VerifyTOTPEnrollment(c.Request.Context(), claims.Subject, body.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DisableMFA(c *gin.Context) {
	method, code, ok := bindMFACode(c)
	if !ok {
		return
	}
	claims, _ := AccessClaims(c)
	ctx := c.Request.Context()

	var err error
	if method == models.MFAMethodTOTP {
		err = h.mfa.DisableTOTP(ctx, claims.Subject, code)
	} else {
		err = h.mfa.DisableEmail(ctx, claims.Subject, code)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendCode emails a fresh MFA code. The caller is identified by a challenge
// token in the body or, failing that, by a password-grant bearer token.
func (h *Handler) SendCode(c *gin.Context) {
	var body struct {
		Token string `json:"token"`
	}
	if !bindOptionalJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()

	var accountID string
	if body.Token != "" {
		claims, err := h.issuer.ParseChallenge(body.Token)
		if err != nil {
			h.fail(c, err)
			return
		}
		if !slices.Contains(claims.Types, models.MFAMethodEmail) {
			h.fail(c, common.ErrEmailMFADisabled)
			return
		}
		accountID = claims.Subject
	} else {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.fail(c, common.ErrorUnauthorized)
			return
		}
		claims, err := h.issuer.ParseAccess(token)
		if err != nil {
			h.fail(c, err)
			return
		}
		if claims.GrantType != models.GrantPassword {
			h.fail(c, errGrantNotAllowed)
			return
		}
		accountID = claims.Subject
	}

	account, err := h.identity.Account(ctx, accountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.mfa.SendEmailCode(ctx, account); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
