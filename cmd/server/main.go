package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rutexd/minidav/internal/auth"
	"github.com/rutexd/minidav/internal/authstore"
	"github.com/rutexd/minidav/internal/cache"
	"github.com/rutexd/minidav/internal/config"
	"github.com/rutexd/minidav/internal/middleware"
	"github.com/rutexd/minidav/internal/props"
	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/vfs/objectfs"
	"github.com/rutexd/minidav/internal/webdav"
	"github.com/rutexd/minidav/internal/webdav/lock"
)

var webdavMethods = []string{
	"OPTIONS", "GET", "HEAD", "PUT", "DELETE",
	"MKCOL", "COPY", "MOVE", "PROPFIND", "PROPPATCH", "LOCK", "UNLOCK",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Optional user database.
	var userStore *authstore.Store
	if cfg.Database.PostgresDSN != "" {
		userStore, err = authstore.Open(cfg.Database.PostgresDSN)
		if err != nil {
			logger.Fatalf("Failed to open user store: %v", err)
		}
		defer userStore.Close()
		logger.Info("Connected to PostgreSQL")
	}

	// Optional credential cache.
	var credCache *cache.CredentialCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		hmacKey := make([]byte, 32)
		if _, err := rand.Read(hmacKey); err != nil {
			logger.Fatalf("Failed to generate cache key: %v", err)
		}
		credCache = cache.NewCredentialCache(rdb, hmacKey)
		logger.Info("Connected to Redis")
	}

	// VFS backend.
	fs, seedable, cleanup, err := buildFS(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer cleanup()

	// Lock persistence survives restarts when a path is configured.
	var lockOpts lock.Options
	lockOpts.DefaultTimeout = cfg.WebDAV.DefaultLockTimeout
	lockOpts.Logger = logrus.NewEntry(logger)
	if cfg.WebDAV.LockDBPath != "" {
		persistence, err := lock.NewPersistence(cfg.WebDAV.LockDBPath)
		if err != nil {
			logger.Fatalf("Failed to open lock database: %v", err)
		}
		lockOpts.Persistence = persistence
	}

	engine := webdav.NewHandler(webdav.Config{
		Prefix:             cfg.WebDAV.Prefix,
		FS:                 fs,
		Locks:              lock.NewManager(lockOpts),
		Logger:             logrus.NewEntry(logger),
		MaxRequestBytes:    cfg.WebDAV.MaxRequestBytes,
		RequestTimeout:     cfg.WebDAV.RequestTimeout,
		UploadTimeout:      cfg.WebDAV.UploadTimeout,
		DefaultLockTimeout: cfg.WebDAV.DefaultLockTimeout,
	})
	defer engine.Close()

	if seedable {
		if err := seedSampleContent(context.Background(), fs); err != nil {
			logger.Warnf("Failed to seed sample content: %v", err)
		}
	}

	authService := auth.NewService(cfg.Auth.Users, userStore, credCache, cfg.Auth.JWTSecret)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	if cfg.CORS.Enabled {
		router.Use(middleware.CORSMiddleware(cfg.CORS))
	}
	if len(cfg.CustomHeaders) > 0 {
		router.Use(middleware.CustomHeadersMiddleware(cfg.CustomHeaders))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"locks":  engine.LockManager().Count(),
			"time":   time.Now().Unix(),
		})
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", handleRegister(userStore, logger))
		authGroup.POST("/login", handleLogin(authService))
	}

	// The engine is a plain http.Handler; gin only contributes
	// routing and the middleware chain.
	webdavGroup := router.Group(cfg.WebDAV.Prefix)
	if cfg.Auth.Enabled {
		webdavGroup.Use(middleware.AuthMiddleware(authService, cfg.Auth.Realm))
	}
	webdavGroup.Use(middleware.StorageQuotaMiddleware(fs, cfg.Storage.QuotaBytes))
	mounted := gin.WrapH(engine)
	for _, method := range webdavMethods {
		webdavGroup.Handle(method, "/*path", mounted)
	}

	srv := &http.Server{
		Addr:           cfg.Server.Address(),
		Handler:        router,
		ReadTimeout:    15 * time.Minute,
		WriteTimeout:   15 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("Starting server on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

// buildFS selects the VFS backend. The boolean reports whether the
// namespace starts empty and should receive sample content.
func buildFS(cfg *config.Config, logger *logrus.Logger) (vfs.FS, bool, func(), error) {
	switch cfg.Storage.Backend {
	case "minio":
		propStore, err := props.NewStore(cfg.Storage.PropertiesDBPath)
		if err != nil {
			return nil, false, nil, err
		}
		fs, err := objectfs.New(context.Background(), objectfs.Options{
			Endpoint:  cfg.Storage.MinIO.Endpoint,
			AccessKey: cfg.Storage.MinIO.AccessKey,
			SecretKey: cfg.Storage.MinIO.SecretKey,
			UseSSL:    cfg.Storage.MinIO.UseSSL,
			Bucket:    cfg.Storage.MinIO.Bucket,
		}, propStore)
		if err != nil {
			propStore.Close()
			return nil, false, nil, err
		}
		logger.Infof("Object storage backend: %s/%s", cfg.Storage.MinIO.Endpoint, cfg.Storage.MinIO.Bucket)
		return fs, false, func() { propStore.Close() }, nil
	default:
		logger.Info("In-memory storage backend")
		return vfs.NewMemory(), true, func() {}, nil
	}
}

// handleRegister creates an account in the user database.
func handleRegister(store *authstore.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "no user database configured"})
			return
		}
		var req struct {
			Username    string `json:"username" binding:"required,min=3,max=50"`
			Email       string `json:"email" binding:"omitempty,email"`
			Password    string `json:"password" binding:"required,min=6"`
			DisplayName string `json:"display_name" binding:"max=100"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
			return
		}
		user, err := store.Create(c.Request.Context(), req.Username, req.Email, hash, req.DisplayName)
		if err != nil {
			logger.WithError(err).Warn("registration failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// handleLogin verifies credentials and issues a bearer token.
func handleLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := authService.ValidateBasic(c.Request.Context(), req.Username, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		token, err := authService.GenerateToken(req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "username": req.Username})
	}
}
