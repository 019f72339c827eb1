package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rutexd/minidav/internal/auth"
	"github.com/rutexd/minidav/internal/config"
	"github.com/rutexd/minidav/internal/vfs"
)

// AuthMiddleware accepts HTTP Basic (the native WebDAV client flow)
// and Bearer tokens issued by the login endpoint.
func AuthMiddleware(authService *auth.Service, realm string) gin.HandlerFunc {
	challenge := `Basic realm="` + realm + `"`
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		switch {
		case strings.HasPrefix(header, "Basic "):
			username, password, ok := c.Request.BasicAuth()
			if !ok || authService.ValidateBasic(c.Request.Context(), username, password) != nil {
				c.Header("WWW-Authenticate", challenge)
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Set("username", username)
		case strings.HasPrefix(header, "Bearer "):
			claims, err := authService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				c.Header("WWW-Authenticate", challenge)
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Set("username", claims.Username)
		default:
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// CORSMiddleware answers preflights and stamps the Access-Control-*
// headers from configuration.
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", cfg.Origins)
		c.Header("Access-Control-Allow-Methods", cfg.Methods)
		c.Header("Access-Control-Allow-Headers", cfg.Headers)
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, Last-Modified, ETag, Lock-Token, DAV")
		c.Header("Access-Control-Max-Age", "86400")
		if cfg.Credentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		// A preflight carries Access-Control-Request-Method; a WebDAV
		// OPTIONS does not and must fall through to the engine.
		if c.Request.Method == http.MethodOptions &&
			c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// CustomHeadersMiddleware injects configured response headers.
func CustomHeadersMiddleware(headers map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for key, value := range headers {
			c.Header(key, value)
		}
		c.Next()
	}
}

// StorageQuotaMiddleware caps the namespace at quotaBytes. Only PUT
// grows content, so only PUT is checked: an upload whose declared
// length would push current usage past the budget answers 507 before
// the engine sees it. Advisory — uploads without a Content-Length
// pass through.
func StorageQuotaMiddleware(fs vfs.FS, quotaBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quotaBytes <= 0 || c.Request.Method != http.MethodPut || c.Request.ContentLength <= 0 {
			c.Next()
			return
		}

		used, err := usedBytes(c.Request.Context(), fs, "/")
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if used+c.Request.ContentLength > quotaBytes {
			c.JSON(http.StatusInsufficientStorage, gin.H{
				"error": "storage quota exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// usedBytes sums file sizes below path.
func usedBytes(ctx context.Context, fs vfs.FS, path string) (int64, error) {
	members, err := fs.Members(ctx, path)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range members {
		if m.Kind == vfs.KindCollection {
			sub, err := usedBytes(ctx, fs, m.Path)
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}
		total += m.Size
	}
	return total, nil
}
