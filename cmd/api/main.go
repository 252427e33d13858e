package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tributary/internal/classifier"
	"tributary/internal/config"
	"tributary/internal/database"
	"tributary/internal/handlers"
	"tributary/internal/jobs/inmemory"
	"tributary/internal/logger"
	"tributary/internal/middleware"
	"tributary/internal/provider"
	"tributary/internal/services"
	"tributary/internal/validator"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	db := dbManager.DB()
	if err := services.SeedMerchantPatterns(db); err != nil {
		return fmt.Errorf("failed to seed merchant patterns: %w", err)
	}

	// Register custom request validators
	validator.Register()

	// External boundaries
	aggregator := provider.NewHTTPAggregator(appConfig.AggregatorBaseURL, appConfig.AggregatorTimeout)
	batchClassifier := classifier.NewGeminiClassifier(appConfig.ClassifierModel)

	// Background categorization queue
	queue := inmemory.NewQueue(appConfig.QueueBufferSize, appConfig.QueueWorkerCount)
	defer queue.Close()

	// Initialize services
	duplicateService := services.NewDuplicateService(db)
	categorizerService := services.NewCategorizerService(db, batchClassifier)
	eventService := services.NewEventService(db)
	reconcilerService := services.NewReconcilerService(db)
	budgetService := services.NewBudgetService(db)
	pipelineService := services.NewPipelineService(
		db, aggregator, duplicateService, categorizerService, eventService, reconcilerService, queue,
	)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	if err := queue.Start(queueCtx, pipelineService.CategorizeJobHandler()); err != nil {
		return fmt.Errorf("failed to start categorization queue: %w", err)
	}

	// Initialize handlers
	importHandler := handlers.NewImportHandler(pipelineService)
	reviewHandler := handlers.NewReviewHandler(pipelineService, categorizerService)
	eventHandler := handlers.NewEventHandler(eventService)
	budgetHandler := handlers.NewBudgetHandler(budgetService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group, JWT protected
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())

	// Import pipeline routes
	imports := v1.Group("/imports")
	imports.POST("", importHandler.ExecuteImport)
	imports.GET("/:id", importHandler.GetBatch)
	imports.GET("/:id/progress", importHandler.StreamProgress)
	imports.GET("/:id/transactions", importHandler.GetBatchTransactions)
	imports.POST("/:id/approve", reviewHandler.ApproveBatch)

	// Staged transaction review routes
	transactions := v1.Group("/transactions")
	transactions.POST("/:id/approve", reviewHandler.ApproveTransaction)
	transactions.POST("/:id/reject", reviewHandler.RejectTransaction)
	transactions.PUT("/:id/category", reviewHandler.CorrectCategory)
	transactions.PUT("/:id/budget", budgetHandler.LinkTransaction)

	// Ledger event routes
	events := v1.Group("/events")
	events.GET("", eventHandler.GetEvents)
	events.GET("/:id", eventHandler.GetEventByID)
	events.POST("/:id/corrections", eventHandler.CreateCorrection)

	// Budget routes
	budgets := v1.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/:id", budgetHandler.GetBudgetByID)
	budgets.GET("/:id/health", budgetHandler.GetBudgetHealth)

	// Downstream accounting surface, API key protected
	pipeline := router.Group("/api/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.GET("/events", eventHandler.ExportEvents)

	srv := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Tributary backend server on port %s", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Warnf("queue shutdown: %v", err)
	}
	return nil
}
