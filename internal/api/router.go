package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/maheshchichkoti/email-archiver/internal/api/handlers"
	"github.com/maheshchichkoti/email-archiver/internal/config"
	"github.com/maheshchichkoti/email-archiver/internal/remote"
	"github.com/maheshchichkoti/email-archiver/internal/services"
	"gorm.io/gorm"
)

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Initialize services
	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
	credentialService := services.NewCredentialService(db, cfg.GetEncryptionKey(), cfg.OAuthConfig())
	messageService := services.NewMessageService(db)
	connector := remote.NewGoogleConnector(credentialService, cfg.DriveFolderID)
	syncService := services.NewSyncService(credentialService, messageService, logService, connector)

	// Start the periodic sync scheduler
	scheduler := services.NewScheduler(syncService, time.Duration(cfg.SyncIntervalMinutes)*time.Minute)
	scheduler.Start()

	// Initialize handlers
	oauthHandler := handlers.NewOAuthHandler(credentialService, cfg)
	syncHandler := handlers.NewSyncHandler(syncService, credentialService, messageService, logService)
	messageHandler := handlers.NewMessageHandler(messageService)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		oauth := api.Group("/oauth")
		{
			oauth.GET("/google/auth", oauthHandler.GetGoogleAuthURL)
			oauth.GET("/google/callback", oauthHandler.GoogleCallback)
		}

		sync := api.Group("/sync")
		{
			sync.POST("/run", syncHandler.TriggerSync)
			sync.GET("/status", syncHandler.GetStatus)
		}

		messages := api.Group("/messages")
		{
			messages.GET("", messageHandler.ListMessages)
			messages.GET("/:id", messageHandler.GetMessage)
		}

		api.GET("/logs", syncHandler.ListLogs)
	}

	return router, nil
}
