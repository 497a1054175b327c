package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/auth"
	"github.com/MasumNishat/signing-sub001/internal/common"
	"github.com/MasumNishat/signing-sub001/internal/docstore"
	"github.com/MasumNishat/signing-sub001/internal/partstore"
	"github.com/MasumNishat/signing-sub001/internal/storage"
	"github.com/MasumNishat/signing-sub001/internal/uploads"
	"github.com/MasumNishat/signing-sub001/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting signing API gateway")

	// Initialize database
	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize cache
	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cache.Close()

	// Initialize storage
	storageFactory := storage.NewStorageFactory(&cfg.Storage)
	blobStorage, err := storageFactory.CreateStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	// Initialize services
	authService := auth.NewService(db, cache, &cfg.Auth)
	documentStore := docstore.NewStore(db, blobStorage, cache)
	uploadManager := uploads.NewManager(partstore.NewBlobStore(blobStorage), cfg.Upload)

	// Start the expiration reaper; it stops with the server
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	uploads.NewReaper(uploadManager, cfg.Upload.ReaperInterval).Start(reaperCtx)

	// Setup HTTP server
	router := setupRouter(authService, uploadManager, documentStore)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopReaper()

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}

func setupRouter(authService *auth.Service, uploadManager *uploads.Manager, documentStore *docstore.Store) *gin.Engine {
	// Set Gin mode based on log level
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "signing-api-gateway",
			"time":    time.Now().UTC(),
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		// Authentication routes
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", handleRegister(authService))
			authRoutes.POST("/login", handleLogin(authService))
			authRoutes.POST("/api-keys", authMiddleware(authService), handleCreateAPIKey(authService))
		}

		// Chunked upload routes
		uploadRoutes := api.Group("/uploads")
		uploadRoutes.Use(authMiddleware(authService))
		{
			uploadRoutes.POST("", handleInitiateUpload(uploadManager))
			uploadRoutes.GET("/:id", handleUploadMetadata(uploadManager))
			uploadRoutes.PUT("/:id/parts/:sequence", handleAddPart(uploadManager))
			uploadRoutes.POST("/:id/commit", handleCommitUpload(uploadManager, documentStore))
			uploadRoutes.DELETE("/:id", handleDeleteUpload(uploadManager))
		}

		// Document routes
		documentRoutes := api.Group("/documents")
		documentRoutes.Use(authMiddleware(authService))
		{
			documentRoutes.GET("/:id", handleGetDocument(documentStore))
			documentRoutes.GET("/:id/content", handleDownloadDocument(documentStore))
		}
	}

	return router
}
