package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/nalar-edu/nalar-api/internal/config"
	"github.com/nalar-edu/nalar-api/internal/database"
	"github.com/nalar-edu/nalar-api/internal/engine/extract"
	"github.com/nalar-edu/nalar-api/internal/handler"
	"github.com/nalar-edu/nalar-api/internal/middleware"
	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/internal/repository"
	"github.com/nalar-edu/nalar-api/internal/router"
	"github.com/nalar-edu/nalar-api/internal/service"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Template{}, &models.Question{}, &models.Rubric{}, &models.ValidationRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	base, err := llm.NewOpenAIGateway(llm.Config{
		BaseURL:        cfg.ModelBaseURL,
		APIKey:         cfg.ModelAPIKey,
		Model:          cfg.ModelID,
		RequestTimeout: cfg.ModelTimeout,
		MaxRetries:     cfg.ModelMaxRetries,
		RetryBackoff:   cfg.ModelRetryBackoff,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("failed to create model gateway: %v", err)
	}

	var gateway llm.Gateway = base
	if redisClient != nil {
		gateway = llm.NewCachedGateway(gateway, redisClient, cfg.ModelID, cfg.CompletionCacheTTL, logger)
	}
	gateway = llm.NewBoundedGateway(gateway, cfg.MaxConcurrentRuns)

	extractor := extract.New(extract.WithDisabledStrategies(cfg.DisabledStrategies))

	validate := validator.New(validator.WithRequiredStructEnabled())

	templateRepo := repository.NewTemplateRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	rubricRepo := repository.NewRubricRepository(db)
	validationRepo := repository.NewValidationRepository(db)

	rubricGen := service.NewRubricGenerator(gateway, extractor, service.RubricOptions{
		Temperature:      cfg.ValidationTemperature,
		MaxTokens:        cfg.ValidationMaxTokens,
		DefaultThreshold: cfg.PassThresholdDefault,
	}, logger)

	generationService := service.NewGenerationService(
		templateRepo, questionRepo, rubricRepo, gateway, rubricGen, validate,
		service.GenerationOptions{
			Temperature:        cfg.GenerationTemperature,
			MaxTokens:          cfg.GenerationMaxTokens,
			ContextTokenBudget: cfg.ContextTokenBudget,
		}, logger)

	validationService := service.NewValidationService(
		questionRepo, rubricRepo, validationRepo, gateway, extractor, cfg.Stages, validate,
		service.ValidationOptions{
			Temperature: cfg.ValidationTemperature,
			MaxTokens:   cfg.ValidationMaxTokens,
		}, logger)

	generationHandler := handler.NewGenerationHandler(generationService, logger)
	validationHandler := handler.NewValidationHandler(validationService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		Gateway:           gateway,
		GenerationHandler: generationHandler,
		ValidationHandler: validationHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
