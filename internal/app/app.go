// Package app boots the audit API server: database, caches, model clients,
// pipeline stages, background workers, and the HTTP listener.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/councilhq/councilapi/internal/audit"
	"github.com/councilhq/councilapi/internal/config"
	"github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/http/api/front"
	"github.com/councilhq/councilapi/internal/llm"
	"github.com/councilhq/councilapi/internal/logging"
	"github.com/councilhq/councilapi/internal/mailer"
	"github.com/councilhq/councilapi/internal/pricing"
	"github.com/councilhq/councilapi/internal/tasks"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Default per-token prices applied to models without a price row:
// $1 per million input tokens, $2 per million output tokens.
var defaultPrice = pricing.Price{
	InputPerToken:  decimal.RequireFromString("0.000001"),
	OutputPerToken: decimal.RequireFromString("0.000002"),
}

// Migrate opens the database and runs migrations.
func Migrate(_ context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if errPing := redisClient.Ping(ctx).Err(); errPing != nil {
			log.WithError(errPing).Warn("redis unavailable, falling back to database-only paths")
			redisClient = nil
		}
	}

	openaiClient := llm.NewOpenAIClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.Moderation.Model)
	registry := llm.NewRegistry(openaiClient)

	var moderator llm.Moderator
	if cfg.LLM.OpenAIAPIKey != "" {
		moderator = openaiClient
	} else {
		log.Warn("no openai api key configured, moderation disabled")
	}

	var extractor llm.Extractor
	if cfg.LLM.GeminiAPIKey != "" {
		geminiClient, errGemini := llm.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.VisionModel)
		if errGemini != nil {
			return errGemini
		}
		defer func() {
			if errClose := geminiClient.Close(); errClose != nil {
				log.WithError(errClose).Warn("gemini client close failed")
			}
		}()
		registry.Register("gemini", geminiClient)
		extractor = geminiClient
	}

	priceTable := pricing.NewTable(conn, redisClient, defaultPrice)
	if errRefresh := priceTable.Refresh(ctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("initial price refresh failed, using defaults")
	}
	priceTable.Start(ctx)

	outbox := tasks.NewOutbox(conn)
	estimator := audit.NewEstimator(priceTable)
	gate := audit.NewGate(conn, moderator, cfg.Moderation.FailClosed)
	assembler := audit.NewAssembler(conn, extractor)
	executor := audit.NewExecutor(registry, cfg.LLM.DrafterTimeout)
	synthesizer := audit.NewSynthesizer(registry)
	updater := audit.NewUpdater(conn, outbox)
	recorder := audit.NewRecorder(conn, redisClient, estimator, outbox)
	pipeline := audit.NewPipeline(conn, gate, estimator, assembler, executor, synthesizer, updater, recorder, outbox)

	worker := tasks.NewWorker(conn, mailer.New(cfg.SMTP), nil)
	worker.Start(ctx)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	front.RegisterRoutes(engine, conn, cfg.JWT, pipeline)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-serveErr:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}
