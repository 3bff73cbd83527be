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

	"github.com/openlms/quiz-api/internal/config"
	"github.com/openlms/quiz-api/internal/database"
	"github.com/openlms/quiz-api/internal/engine"
	"github.com/openlms/quiz-api/internal/events"
	"github.com/openlms/quiz-api/internal/handler"
	"github.com/openlms/quiz-api/internal/middleware"
	"github.com/openlms/quiz-api/internal/repository"
	"github.com/openlms/quiz-api/internal/router"
	"github.com/openlms/quiz-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	quizRepo := repository.NewQuizRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	overrideRepo := repository.NewOverrideRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	transactor := repository.NewTransactor(db)

	questionEngine := engine.New(usageRepo, questionRepo, logger)
	dispatcher := events.NewDispatcher(natsConn, "quiz.attempts", logger)
	policy := service.NewRoleAccessPolicy()

	timingService := service.NewTimingService(overrideRepo, redisClient, cfg.TimingCacheTTL, logger)
	selector := service.NewQuestionSelector(questionEngine, questionRepo, logger)
	builder := service.NewAttemptBuilder(questionEngine, selector, quizRepo, questionRepo, logger)
	attemptService := service.NewAttemptService(attemptRepo, quizRepo, gradeRepo, questionEngine, builder, timingService, dispatcher, transactor, logger)
	quizService := service.NewQuizService(quizRepo, transactor, logger)
	overrideService := service.NewOverrideService(overrideRepo, quizRepo, attemptService, timingService, logger)

	sweeper := service.NewSweeper(attemptRepo, quizRepo, attemptService, timingService, dispatcher, logger).
		WithBatchSize(cfg.SweepBatchSize)

	quizHandler := handler.NewQuizHandler(quizService, policy, logger)
	attemptHandler := handler.NewAttemptHandler(attemptService, quizRepo, attemptRepo, policy, validate, logger)
	overrideHandler := handler.NewOverrideHandler(overrideService, policy, validate, logger)
	reviewHandler := handler.NewReviewHandler(quizRepo, attemptRepo, policy, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		QuizHandler:     quizHandler,
		AttemptHandler:  attemptHandler,
		OverrideHandler: overrideHandler,
		ReviewHandler:   reviewHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx, cfg.SweepInterval)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopSweeper)
}

func waitForShutdown(app *fiber.App, stopSweeper context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
