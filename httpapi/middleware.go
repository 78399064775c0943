package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusgate/authcore"
)

// RequireAuth verifies the access token and stores the resulting identity
// in the request context. The token is taken from the Authorization header
// when present, otherwise from the access cookie.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			tok, _ = c.Cookie(accessCookieName)
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
			return
		}
		identity, err := s.engine.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired access token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose role is not in the
// allowed set. Must run after RequireAuth.
func (s *Server) RequireRole(roles ...authcore.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

func identityFrom(c *gin.Context) (authcore.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return authcore.Identity{}, false
	}
	identity, ok := v.(authcore.Identity)
	return identity, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
