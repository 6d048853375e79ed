package httpapi

import (
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/gin-gonic/gin"
)

// NewRouter mounts every endpoint under /auth.
func NewRouter(d Deps, cfg *config.Config, logger logging.Logger) *gin.Engine {
	h := NewHandler(d, cfg, logger)
	logger = logger.With("module", "httpapi")

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	authenticated := Authenticate(d.Issuer, logger)
	session := []gin.HandlerFunc{authenticated, RequirePasswordGrant(logger)}
	limited := RateLimit(d.Limiter, logger)

	g := r.Group("/auth")
	g.POST("/sign-up", h.SignUp)
	g.GET("/verify", h.Verify)
	g.POST("/verify/resend", h.ResendVerification)
	g.POST("/token", limited, h.Token)
	g.DELETE("/oauth2/revoke", h.Revoke)
	g.POST("/mfa/send-code", limited, h.SendCode)

	g.GET("/user", authenticated, RequireScopes(d.Scopes, logger, "read:user"), h.User)

	s := g.Group("", session...)
	s.POST("/sign-out", h.SignOut)
	s.POST("/sign-out/all-sessions", h.SignOutAll)
	s.GET("/user/sessions", h.Sessions)
	s.GET("/mfa", h.MFAStatus)
	s.POST("/mfa/enable", h.EnableMFA)
	s.POST("/mfa/verify", h.VerifyTOTP)
	s.POST("/mfa/disable", h.DisableMFA)
	s.POST("/oauth2/authorize", h.Authorize)
	s.DELETE("/oauth2/connections/:connectionId", h.DeleteConnection)

	return r
}
