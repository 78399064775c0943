package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusgate/authcore"
)

const (
	accessCookieName  = "cg_access"
	refreshCookieName = "cg_refresh"

	// refreshCookiePath keeps the refresh token off every request except
	// the auth endpoints themselves.
	refreshCookiePath = "/auth"
)

// setSessionCookies installs both token cookies. The refresh cookie is
// HttpOnly and path-restricted; scripts never see the refresh token.
func (s *Server) setSessionCookies(c *gin.Context, pair authcore.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessCookieName, pair.AccessToken,
		int(s.cookies.AccessTTL.Seconds()), "/", s.cookies.Domain, s.cookies.Secure, true)
	c.SetCookie(refreshCookieName, pair.RefreshToken,
		int(s.cookies.RefreshTTL.Seconds()), refreshCookiePath, s.cookies.Domain, s.cookies.Secure, true)
}

// clearSessionCookies expires both token cookies. Attributes must match the
// ones used when setting, or browsers keep the originals.
func (s *Server) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessCookieName, "", -1, "/", s.cookies.Domain, s.cookies.Secure, true)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, s.cookies.Domain, s.cookies.Secure, true)
}

// refreshTokenFromRequest reads the refresh token cookie; absent means "".
func refreshTokenFromRequest(c *gin.Context) string {
	tok, err := c.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return tok
}
