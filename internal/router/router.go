package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/openlms/quiz-api/internal/config"
	"github.com/openlms/quiz-api/internal/handler"
	"github.com/openlms/quiz-api/internal/middleware"
	"github.com/openlms/quiz-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	QuizHandler     *handler.QuizHandler
	AttemptHandler  *handler.AttemptHandler
	OverrideHandler *handler.OverrideHandler
	ReviewHandler   *handler.ReviewHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	quiz := app.Group("/api/v1/quiz", jwtMiddleware)

	if deps.QuizHandler != nil {
		quizGroup := quiz.Group("/quizzes")
		deps.QuizHandler.Register(quizGroup)
	}

	if deps.AttemptHandler != nil {
		// Starting attempts is the write-heavy path, keep it rate limited.
		attemptGroup := quiz.Group("/attempts", middleware.RateLimit("attempts", 30, time.Minute))
		deps.AttemptHandler.Register(attemptGroup)
	}

	if deps.OverrideHandler != nil {
		deps.OverrideHandler.Register(quiz)
	}

	if deps.ReviewHandler != nil {
		deps.ReviewHandler.Register(quiz)
	}
}
