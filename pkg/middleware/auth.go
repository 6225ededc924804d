package middleware

import (
	"crypto/subtle"

	"hashmine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderAdminKey = "X-Admin-Key"

	userIDKey = "user_id"
)

// UserID requires the caller identity set by the session layer in front of
// the API.
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderUserID)
		if id == "" {
			c.Error(errutil.Unauthorized("missing user identity", nil))
			c.Abort()
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// AdminKey guards admin routes with a static key. An empty key disables
// every admin route.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderAdminKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.Error(errutil.Forbidden("admin access required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
