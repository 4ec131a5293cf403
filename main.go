package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/config"
	"github.com/kendall-kelly/fleetglass-api/middleware"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/router"
	"github.com/kendall-kelly/fleetglass-api/services"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"go.uber.org/zap"
)

func main() {
	logger, err := config.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	config.SetLogger(logger)

	logger.Info("starting FleetGlass API server")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := config.ConnectDatabase(); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	logger.Info("database migration completed")

	setupImageStorage(cfg)
	closeQueue := setupNotifications(cfg, repository.NewStore(db))
	defer closeQueue()

	authMiddleware, err := middleware.EnsureValidToken(cfg)
	if err != nil {
		logger.Fatal("failed to set up auth middleware", zap.Error(err))
	}

	engine := newEngine(cfg, logger, authMiddleware)

	addr := ":" + cfg.Port
	logger.Info("server listening", zap.String("addr", addr), zap.String("env", cfg.GoEnv))
	if err := engine.Run(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

// newEngine assembles the HTTP stack: recovery, request logging, CORS, the public
// health endpoints and the authenticated API
func newEngine(cfg *config.Config, logger *zap.Logger, auth gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), cors.New(corsConfig(cfg)))

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
	}
	router.Register(v1, auth)
	return engine
}

// setupImageStorage sends repair photos to S3 when a bucket is configured and to
// the local upload directory otherwise
func setupImageStorage(cfg *config.Config) {
	if cfg.UsesS3() {
		s3Service, err := services.InitS3Service(context.Background(), cfg)
		if err != nil {
			config.Logger().Fatal("failed to initialize S3", zap.Error(err))
		}
		services.InitImageService(s3Service)
		config.Logger().Info("repair photos stored in S3", zap.String("bucket", cfg.AWSS3Bucket))
		return
	}

	utils.UploadDir = cfg.UploadDir
	services.SetImageService(services.NewLocalImageService(cfg.UploadDir))
	config.Logger().Info("repair photos stored locally", zap.String("dir", cfg.UploadDir))
}

// setupNotifications always records notifications in the database and, when Redis
// is configured, also queues them for the delivery workers
func setupNotifications(cfg *config.Config, store *repository.Store) func() {
	dispatchers := services.FanoutDispatcher{services.NewStoreDispatcher(store)}
	closeQueue := func() {}

	if cfg.UsesRedis() {
		queue := services.NewRedisNotificationQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotificationQueue)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := queue.Ping(ctx); err != nil {
			config.Logger().Error("redis unavailable, notifications will not be queued", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			queue.Close()
		} else {
			dispatchers = append(dispatchers, queue)
			closeQueue = func() {
				if err := queue.Close(); err != nil {
					config.Logger().Warn("failed to close redis client", zap.Error(err))
				}
			}
			config.Logger().Info("notifications queued to redis", zap.String("queue", cfg.NotificationQueue))
		}
	}

	services.SetNotificationDispatcher(dispatchers)
	return closeQueue
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	if len(cfg.CORSAllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
		corsCfg.AllowCredentials = true
	}
	corsCfg.MaxAge = 12 * time.Hour
	return corsCfg
}

// requestLogger logs one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "FleetGlass API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database not configured",
			},
		})
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
