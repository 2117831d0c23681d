package main

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/justsurfingit/jobseekr/internal/config"
	"github.com/justsurfingit/jobseekr/internal/database"
	"github.com/justsurfingit/jobseekr/internal/events"
	"github.com/justsurfingit/jobseekr/internal/handlers"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/justsurfingit/jobseekr/internal/workers"
	"github.com/robfig/cron/v3"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
	cfg := config.Load()

	// 2. Database Connection
	db := database.Connect(cfg.DatabaseDSN)

	// 3. Initialize Core Services (Dependencies)
	llmService := services.NewLLMService(cfg.GeminiAPIKey, cfg.GeminiModel)
	analysisService := services.NewAnalysisService(llmService)
	extractorService := services.NewExtractorService(llmService)
	validatorService := services.NewValidatorService(llmService)
	contentService := services.NewContentService(cfg.JinaBaseURL)
	hnService := services.NewHackerNewsService(cfg.HackerNewsBaseURL, cfg.AlgoliaBaseURL)
	threadService := services.NewThreadService(db, hnService)
	analysisStore := services.NewAnalysisStore(db)
	jobService := services.NewJobService(db)
	sessionService := services.NewSessionService(db)
	searchService := services.NewSearchService(db, cfg.GoogleSearchAPIKey, cfg.GoogleSearchEngineID, cfg.SearchBaseURL)

	// 4. Event Hub & Workers
	hub := events.NewHub()
	threadWorker := workers.NewThreadWorker(db, extractorService, hub)
	bulkWorker := workers.NewBulkWorker(db, analysisService, analysisStore, hub)

	// Pick processing back up where a previous run left off
	if err := threadWorker.ResumeInterrupted(); err != nil {
		log.Printf("⚠️ Failed to resume thread processing: %v", err)
	}
	if err := bulkWorker.ResumeInterrupted(); err != nil {
		log.Printf("⚠️ Failed to resume bulk analysis: %v", err)
	}

	// 5. Maintenance Cron
	c := cron.New()
	c.AddFunc("@hourly", func() {
		if _, err := sessionService.ExpireStale(); err != nil {
			log.Printf("⚠️ Stale session sweep failed: %v", err)
		}
		// Restarting in-flight bulk sessions also closes out any whose
		// thread has no work left.
		if err := bulkWorker.ResumeInterrupted(); err != nil {
			log.Printf("⚠️ Bulk session sweep failed: %v", err)
		}
	})
	c.Start()

	// 6. Initialize Handlers
	hnHandler := handlers.NewHackerNewsHandler(threadService, hnService, analysisService, analysisStore, threadWorker, bulkWorker, hub)
	searchHandler := handlers.NewSearchHandler(sessionService, searchService, contentService, validatorService, analysisService, jobService)
	jobHandler := handlers.NewJobHandler(jobService, contentService, validatorService, analysisService)

	// 7. Setup Router & CORS
	r := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true // For development only
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// 8. Define Routes
	api := r.Group("/api/v1")
	{
		api.GET("/health", handlers.HealthCheck)

		// HackerNews Routes
		api.GET("/hackernews/threads/:threadId", hnHandler.GetThread)
		api.POST("/hackernews/threads/:threadId/process", hnHandler.StartProcessing)
		api.POST("/hackernews/threads/:threadId/pause", hnHandler.PauseProcessing)
		api.POST("/hackernews/threads/:threadId/resume", hnHandler.ResumeProcessing)
		api.GET("/hackernews/threads/:threadId/subscribe", hnHandler.Subscribe)
		api.GET("/hackernews/hiring-threads", hnHandler.GetHiringThreads)
		api.POST("/hackernews/comments/:commentId/analyze", hnHandler.AnalyzeComment)
		api.GET("/hackernews/analyses", hnHandler.ListAnalyses)
		api.POST("/hackernews/bulk-analysis/start", hnHandler.StartBulkAnalysis)
		api.POST("/hackernews/bulk-analysis/pause", hnHandler.PauseBulkAnalysis)
		api.GET("/hackernews/bulk-analysis/progress", hnHandler.BulkAnalysisProgress)

		// Search Routes
		api.POST("/search/stream", searchHandler.StreamSearch)
		api.GET("/search/status", searchHandler.GetSearchStatus)
		api.DELETE("/search/status", searchHandler.CancelSearch)

		// Job Routes
		api.GET("/jobs", jobHandler.ListJobs)
		api.PATCH("/jobs/bulk-status", jobHandler.BulkUpdateJobStatus)
		api.PATCH("/jobs/:id/status", jobHandler.UpdateJobStatus)
		api.POST("/analyze/job", jobHandler.AnalyzeJob)
	}

	log.Printf("🚀 Server starting on port %s...", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
