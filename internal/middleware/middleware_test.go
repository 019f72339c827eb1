package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutexd/minidav/internal/vfs"
)

func quotaRouter(fs vfs.FS, quota int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(StorageQuotaMiddleware(fs, quota))
	router.PUT("/*path", func(c *gin.Context) { c.Status(http.StatusCreated) })
	router.GET("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestStorageQuotaRejectsOversizedUpload(t *testing.T) {
	fs := vfs.NewMemory()
	require.NoError(t, fs.WriteStream(context.Background(), "/existing",
		strings.NewReader(strings.Repeat("x", 60)), nil))
	router := quotaRouter(fs, 100)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/new", strings.NewReader(strings.Repeat("y", 50))))
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Contains(t, w.Body.String(), "storage quota exceeded")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/new", strings.NewReader(strings.Repeat("y", 30))))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestStorageQuotaIgnoresReadsAndZeroQuota(t *testing.T) {
	fs := vfs.NewMemory()
	require.NoError(t, fs.WriteStream(context.Background(), "/big",
		strings.NewReader(strings.Repeat("x", 500)), nil))

	// Reads never hit the quota check.
	router := quotaRouter(fs, 100)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/big", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Zero disables enforcement entirely.
	router = quotaRouter(fs, 0)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/more", strings.NewReader("data")))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
