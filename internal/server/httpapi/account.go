package httpapi

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type signUpBody struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type userResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	Verified        bool       `json:"verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

// SignUp registers an account: POST /auth/sign-up.
func (h *Handler) SignUp(c *gin.Context) {
	var body signUpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithValidation(c, badBody())
		return
	}
	var errs []fieldError
	switch {
	case body.Email == "":
		errs = append(errs, required("EMAIL_REQUIRED", inBody, "email"))
	case !services.IsEmail(body.Email):
		errs = append(errs, invalid("INVALID_EMAIL", inBody, "email"))
	}
	switch {
	case body.Username == "":
		errs = append(errs, required("USERNAME_REQUIRED", inBody, "username"))
	case !services.ValidUsername(body.Username):
		errs = append(errs, invalid("INVALID_USERNAME", inBody, "username"))
	}
	switch {
	case body.Password == "":
		errs = append(errs, required("PASSWORD_REQUIRED", inBody, "password"))
	case utf8.RuneCountInString(body.Password) < services.MinPasswordLength:
		errs = append(errs, invalid("INVALID_PASSWORD_LENGTH", inBody, "password"))
	case !services.StrongPassword(body.Password):
		errs = append(errs, invalid("INVALID_PASSWORD", inBody, "password"))
	}
	if len(errs) > 0 {
		abortWithValidation(c, errs...)
		return
	}

	account, err := h.identity.SignUp(c.Request.Context(), body.Email, body.Username, body.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, accountResponse{ID: account.ID, Email: account.Email, Username: account.Username})
}

// Verify confirms an email address: GET /auth/verify?email=&token=.
func (h *Handler) Verify(c *gin.Context) {
	email, token := c.Query("email"), c.Query("token")
	var errs []fieldError
	if email == "" {
		errs = append(errs, required("EMAIL_REQUIRED", inQuery, "email"))
	}
	if token == "" {
		errs = append(errs, required("TOKEN_REQUIRED", inQuery, "token"))
	}
	if len(errs) > 0 {
		abortWithValidation(c, errs...)
		return
	}
	if err := h.identity.VerifyEmail(c.Request.Context(), email, token); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResendVerification(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithValidation(c, badBody())
		return
	}
	if body.Email == "" {
		abortWithValidation(c, required("EMAIL_REQUIRED", inBody, "email"))
		return
	}
	if err := h.identity.ResendVerification(c.Request.Context(), body.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SignOut revokes the caller's session and clears the refresh cookie.
func (h *Handler) SignOut(c *gin.Context) {
	claims, _ := AccessClaims(c)
	if err := h.sessions.SignOut(c.Request.Context(), claims.Subject, claims.SessionID); err != nil {
		h.fail(c, err)
		return
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

// SignOutAll revokes every session of the caller after an MFA check.
func (h *Handler) SignOutAll(c *gin.Context) {
	method, code, ok := bindMFACode(c)
	if !ok {
		return
	}
	claims, _ := AccessClaims(c)
	if err := h.sessions.SignOutAll(c.Request.Context(), claims.Subject, method, code); err != nil {
		h.fail(c, err)
		return
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

// User returns the account behind the access token.
func (h *Handler) User(c *gin.Context) {
	claims, _ := AccessClaims(c)
	account, err := h.identity.Account(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{
		ID:              account.ID,
		Email:           account.Email,
		Username:        account.Username,
		Verified:        account.Verified(),
		EmailVerifiedAt: account.EmailVerifiedAt,
	})
}

func (h *Handler) Sessions(c *gin.Context) {
	claims, _ := AccessClaims(c)
	sessions, err := h.sessions.Sessions(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// bindMFACode reads {type, code} and checks the code shape for the method.
func bindMFACode(c *gin.Context) (models.MFAMethod, string, bool) {
	var body struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithValidation(c, badBody())
		return "", "", false
	}
	method, ok := models.ParseMFAMethod(body.Type)
	if !ok {
		abortWithValidation(c, invalid("UNSUPPORTED_MFA_METHOD", inBody, "type"))
		return "", "", false
	}
	if !validCode(c, method, body.Code) {
		return "", "", false
	}
	return method, body.Code, true
}
