package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatclient/models"
)

const (
	UserKey      = "user"
	OperationKey = "operation"
)

// TokenVerifier resolves a bearer token to its user.
type TokenVerifier interface {
	Verify(token string) (models.User, bool)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Auth rejects requests without a valid bearer token or with a role other
// than role, and stores the user under UserKey.
func Auth(tokens TokenVerifier, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := tokens.Verify(BearerToken(c.GetHeader("Authorization")))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errors": []gin.H{{"message": "invalid or missing bearer token"}}})
			return
		}
		if r := c.GetHeader("x-hasura-role"); r != "" && r != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"errors": []gin.H{{"message": "role not allowed: " + r}}})
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) models.User {
	u, _ := c.Get(UserKey)
	user, _ := u.(models.User)
	return user
}
