package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const currentUserKey = "current_user"

// Authenticator resolves a bearer access token to the stored account.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// AuthMiddleware requires a valid bearer access token and stores the account it
// belongs to in the context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authentication credentials were not provided.")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			abortUnauthorized(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			if service.CodeOf(err) == service.CodeInternal {
				logger.Log.Error("Failed to authenticate request", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
					"code":  service.CodeInternal,
				})
				return
			}
			abortUnauthorized(c, "Given token not valid for any token type")
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// RequireValidUser lets through only accounts an administrator has approved.
func RequireValidUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsValid {
			abortForbidden(c, "You do not have permission to perform this action.")
			return
		}
		c.Next()
	}
}

// AdminMiddleware requires a staff or superuser account. Runs after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abortUnauthorized(c, "Authentication credentials were not provided.")
			return
		}
		if !user.IsAdmin() {
			logger.Log.Warn("Admin route denied", zap.Uint("user_id", user.ID), zap.String("path", c.FullPath()))
			abortForbidden(c, "Admin access required")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the account set by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"code":  service.CodeAuthentication,
	})
}

func abortForbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error": message,
		"code":  service.CodeForbidden,
	})
}
