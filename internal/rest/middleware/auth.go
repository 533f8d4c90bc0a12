package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/types"

	"github.com/gin-gonic/gin"
)

// IdentityMiddleware resolves the caller identity. The service runs
// behind an authenticating proxy, so the user id arrives as a trusted
// header; requests without one are rejected. The tenant id falls back to
// the default single-tenant value.
func IdentityMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(cfg.Auth.UserIDHeader)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		tenantID := c.GetHeader(types.HeaderTenantID)
		if tenantID == "" {
			tenantID = types.DefaultTenantID
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)
		ctx = context.WithValue(ctx, types.CtxUserID, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminMiddleware marks the request context as privileged when the admin
// key matches. An unset key disables the admin surface.
func AdminMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(types.HeaderAdminKey)
		if cfg.Auth.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Auth.AdminKey)) != 1 {
			logger.Debugw("rejected admin request", "path", c.Request.URL.Path)
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(types.SetAdmin(c.Request.Context()))
		c.Next()
	}
}
