package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type authorizeBody struct {
	ClientID    string   `json:"client_id"`
	RedirectURL string   `json:"redirect_url"`
	Scopes      []string `json:"scopes"`
}

// Authorize issues an authorization code for the signed-in account. An
// existing connection absorbs the scopes instead and the answer is 204.
func (h *Handler) Authorize(c *gin.Context) {
	var body authorizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithValidation(c, badBody())
		return
	}
	var errs []fieldError
	switch {
	case body.ClientID == "":
		errs = append(errs, required("CLIENT_ID_REQUIRED", inBody, "client_id"))
	case uuid.Validate(body.ClientID) != nil:
		errs = append(errs, invalid("CLIENT_NOT_FOUND", inBody, "client_id"))
	}
	if body.RedirectURL == "" {
		errs = append(errs, required("REDIRECT_URL_REQUIRED", inBody, "redirect_url"))
	}
	if len(body.Scopes) == 0 {
		errs = append(errs, required("SCOPES_REQUIRED", inBody, "scopes"))
	}
	if len(errs) > 0 {
		abortWithValidation(c, errs...)
		return
	}

	claims, _ := AccessClaims(c)
	grant, err := h.oauth2.IssueAuthorizationCode(c.Request.Context(), claims.Subject, body.ClientID, body.RedirectURL, body.Scopes)
	if err != nil {
		h.fail(c, err)
		return
	}
	if grant == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": grant.Code, "expires": grant.Expires})
}

func (h *Handler) DeleteConnection(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("connectionId"), 10, 64)
	if err != nil || id <= 0 {
		abortWithValidation(c, invalid("INVALID_CONNECTION_ID", inParams, "connectionId"))
		return
	}
	claims, _ := AccessClaims(c)
	if err := h.oauth2.DeleteConnection(c.Request.Context(), claims.Subject, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
