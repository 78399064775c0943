package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/authcore"
	"github.com/campusgate/authcore/rate"
)

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceName string `json:"device_name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	Device    string `json:"device"`
	UserAgent string `json:"user_agent"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	ctx := authcore.WithClientIP(c.Request.Context(), c.ClientIP())
	ctx = authcore.WithUserAgent(ctx, c.Request.UserAgent())
	device := authcore.DeviceInfo{
		Name:      req.DeviceName,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}

	pair, err := s.engine.Login(ctx, req.Email, req.Password, device)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.setSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"access_token": pair.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   int(s.cookies.AccessTTL.Seconds()),
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	tok := refreshTokenFromRequest(c)
	if tok == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		return
	}

	ctx := authcore.WithClientIP(c.Request.Context(), c.ClientIP())
	pair, err := s.engine.Refresh(ctx, tok)
	if err != nil {
		// A token this browser cannot use again is not worth keeping.
		if errors.Is(err, authcore.ErrRefreshReuse) || errors.Is(err, authcore.ErrRefreshInvalid) ||
			errors.Is(err, authcore.ErrRefreshExpired) {
			s.clearSessionCookies(c)
		}
		s.writeError(c, err)
		return
	}
	s.setSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"access_token": pair.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   int(s.cookies.AccessTTL.Seconds()),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if tok := refreshTokenFromRequest(c); tok != "" {
		if err := s.engine.Logout(c.Request.Context(), tok); err != nil {
			s.writeError(c, err)
			return
		}
	}
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}
	n, err := s.engine.RevokeAllSessions(c.Request.Context(), identity.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

func (s *Server) handleListSessions(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}
	sessions, err := s.engine.ListSessions(c.Request.Context(), identity.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:        sess.ID,
			Device:    sess.DeviceInfo,
			UserAgent: sess.UserAgent,
			CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
			ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleRevokeSession(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}
	if err := s.engine.RevokeSession(c.Request.Context(), identity.UserID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleChangePassword(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current and new password are required"})
		return
	}
	err := s.engine.ChangePassword(c.Request.Context(), identity.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.writeError(c, err)
		return
	}
	// Every refresh token is gone; the cookies are now dead weight.
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

// writeError maps engine errors onto HTTP status codes. Anything unmapped
// is a 500 with a generic body; the detail goes to the log only.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authcore.ErrLoginRateLimited), errors.Is(err, authcore.ErrRefreshRateLimited):
		var denied *rate.DeniedError
		if errors.As(err, &denied) {
			secs := int(math.Ceil(denied.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	case errors.Is(err, authcore.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, authcore.ErrRefreshReuse),
		errors.Is(err, authcore.ErrRefreshInvalid),
		errors.Is(err, authcore.ErrRefreshExpired),
		errors.Is(err, authcore.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, authcore.ErrAccountBlocked),
		errors.Is(err, authcore.ErrAccountDeleted),
		errors.Is(err, authcore.ErrAccountUnverified):
		c.JSON(http.StatusForbidden, gin.H{"error": "account not permitted to sign in"})
	case errors.Is(err, authcore.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, authcore.ErrPasswordReuse):
		c.JSON(http.StatusBadRequest, gin.H{"error": "new password must differ from the current one"})
	case errors.Is(err, authcore.ErrPasswordPolicy):
		c.JSON(http.StatusBadRequest, gin.H{"error": "new password does not meet policy"})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
