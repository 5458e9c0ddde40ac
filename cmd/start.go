/*
Copyright © 2025 daureny
*/
package cmd

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/daureny/rag-chatbot-be/config"
	"github.com/daureny/rag-chatbot-be/database"
	"github.com/daureny/rag-chatbot-be/handler"
	"github.com/daureny/rag-chatbot-be/repository"
	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/telegram"
)

// startServerCmd represents the startServer command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chatbot server",
	Long:  `Starts the HTTP API and, when a bot token is configured, the Telegram bot`,
	Run: func(cmd *cobra.Command, args []string) {

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if cfg.OpenAIAPIKey == "" {
			log.Println("WARNING: OPENAI_API_KEY is not set, embeddings will fail")
		}
		if cfg.AnthropicAPIKey == "" {
			log.Println("WARNING: ANTHROPIC_API_KEY is not set, answer generation will fail")
		}

		// Initialize services
		embedder := service.NewOpenAIEmbedder(cfg.OpenAIAPIKey)
		splitter := service.NewTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
		loader := service.NewDocumentLoader(cfg.MaxFileSizeBytes)
		builder := service.NewIndexBuilder(
			embedder,
			splitter,
			loader,
			cfg.BatchSize,
			time.Duration(cfg.BatchPauseSeconds)*time.Second,
			time.Duration(cfg.RateLimitBackoffSeconds)*time.Second,
		)

		manager := service.NewIndexManager(cfg.IndexDir, cfg.LocalIndexDir, cfg.DocsDir, embedder, builder)
		manager.SyncOnStartup()

		var sessions service.SessionStore
		if cfg.MongoDBURI != "" {
			mongoClient, err := database.ConnectMongo(context.Background(), cfg.MongoDBURI)
			if err != nil {
				log.Fatalf("Failed to connect to MongoDB: %v", err)
			}
			sessions = repository.NewMongoSessionStore(mongoClient.Database("chatbot").Collection("sessions"))
			log.Println("Using MongoDB session store")
		} else {
			sessions = service.NewMemorySessionStore()
			log.Println("Using in-memory session store")
		}

		primary := service.NewAnthropicService(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		fallback := service.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		queryService := service.NewQueryService(manager, primary, fallback, sessions, cfg.IndexDir)

		// Initialize handlers
		corsHandler := handler.NewCorsHandler(cfg.AllowedOrigins)
		askHandler := handler.NewAskHandler(queryService)
		sessionHandler := handler.NewSessionHandler(sessions)
		adminHandler := handler.NewAdminHandler(cfg.AdminPassword, manager)
		infoHandler := handler.NewInfoHandler(cfg, manager, sessions)

		// Start the Telegram bot alongside the HTTP server
		if cfg.TelegramBotToken != "" {
			bot, err := telegram.NewBot(cfg.TelegramBotToken, queryService)
			if err != nil {
				log.Printf("Failed to start Telegram bot: %v", err)
			} else {
				go bot.Run(context.Background())
			}
		} else {
			log.Println("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
		}

		// Setup Gin router
		router := gin.Default()

		// Apply global middleware
		router.Use(corsHandler.CorsMiddleware)

		router.GET("/ping", infoHandler.HandlePing)
		router.POST("/ask", askHandler.HandleAsk)
		router.POST("/clear-session", sessionHandler.HandleClearSession)

		router.POST("/rebuild", adminHandler.HandleRebuild)
		router.POST("/update-index", adminHandler.HandleUpdateIndex)

		router.GET("/index-info", infoHandler.HandleIndexInfo)
		router.GET("/last-updated", infoHandler.HandleLastUpdated)
		router.GET("/indexing-status", infoHandler.HandleIndexingStatus)
		router.GET("/config", infoHandler.HandleConfig)

		log.Printf("Starting server on port %s...\n", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Server error:", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(startServerCmd)
}
