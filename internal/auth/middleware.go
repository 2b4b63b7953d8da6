package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextUserKey is where RequireAuth stores the authenticated user ID.
const ContextUserKey = "userID"

// RequireAuth rejects requests without a valid session. A reachable-but-
// negative answer from the verifier is a 401; not being able to ask at all
// is a 503.
func RequireAuth(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "Please log in to access this resource",
			})
			return
		}

		session, err := verifier.Verify(c.Request.Context(), token)
		if errors.Is(err, ErrUnauthenticated) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "Please log in to access this resource",
			})
			return
		}
		if err != nil {
			log.Printf("❌ auth validation failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Authentication service unavailable",
				"message": "Could not verify your login status. Please try again.",
			})
			return
		}

		c.Set(ContextUserKey, session.UserID)
		c.Set("username", session.Username)
		c.Next()
	}
}

// UserID pulls the authenticated user out of the gin context.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// BearerToken extracts the session token from the Authorization header or,
// for websocket upgrades where headers are awkward, a token query parameter.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if header != "" {
		return header
	}
	return r.URL.Query().Get("token")
}
