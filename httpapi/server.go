package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/authcore"
)

const (
	// identityKey is the gin context key RequireAuth stores the verified
	// identity under.
	identityKey = "httpapi.identity"
)

// CookieConfig controls the cookies the gateway issues.
type CookieConfig struct {
	// Domain for all auth cookies; empty means host-only.
	Domain string
	// Secure should only be disabled for local development over plain HTTP.
	Secure bool
	// AccessTTL bounds the access cookie's Max-Age. Should match the
	// engine's access token TTL.
	AccessTTL time.Duration
	// RefreshTTL bounds the refresh cookie's Max-Age. Should match the
	// engine's refresh token TTL.
	RefreshTTL time.Duration
}

// Server wires the session engine to HTTP routes.
type Server struct {
	engine  *authcore.Engine
	logger  *zap.Logger
	cookies CookieConfig
}

// NewServer creates the gateway. A nil logger falls back to zap.NewNop.
func NewServer(engine *authcore.Engine, cookies CookieConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, logger: logger, cookies: cookies}
}

// Register mounts the auth routes on r under /auth.
func (s *Server) Register(r gin.IRouter) {
	auth := r.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.POST("/refresh", s.handleRefresh)
	auth.POST("/logout", s.handleLogout)

	protected := auth.Group("", s.RequireAuth())
	protected.POST("/logout_all", s.handleLogoutAll)
	protected.GET("/sessions", s.handleListSessions)
	protected.DELETE("/sessions/:id", s.handleRevokeSession)
	protected.POST("/password", s.handleChangePassword)
}
