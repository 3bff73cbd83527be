package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/repository"
	"github.com/openlms/quiz-api/internal/service"
	"github.com/openlms/quiz-api/internal/utils"
)

// ReviewHandler answers what a viewer may see of finished and running attempts.
type ReviewHandler struct {
	quizzes  repository.QuizRepository
	attempts repository.AttemptRepository
	policy   service.AccessPolicy
	logger   zerolog.Logger
	now      func() time.Time
}

// NewReviewHandler builds a review handler instance.
func NewReviewHandler(quizzes repository.QuizRepository, attempts repository.AttemptRepository, policy service.AccessPolicy, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		quizzes:  quizzes,
		attempts: attempts,
		policy:   policy,
		logger:   logger.With().Str("component", "review_handler").Logger(),
		now:      time.Now,
	}
}

// Register attaches the routes to the provided router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/attempts/:id/review-options", h.attemptOptions)
	router.Get("/quizzes/:quizID/review-options", h.combinedOptions)
}

func (h *ReviewHandler) viewer(c *fiber.Ctx) service.ViewerCapabilities {
	userID := userIDFromContext(c)
	role := userRoleFromContext(c)
	return service.ViewerCapabilities{
		ViewReports:      h.policy.Allows(c.Context(), userID, role, service.CapabilityViewReports),
		ViewHiddenGrades: h.policy.Allows(c.Context(), userID, role, service.CapabilityViewHiddenGrades),
	}
}

func (h *ReviewHandler) attemptOptions(c *fiber.Ctx) error {
	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	attempt, err := h.attempts.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "attempt not found")
		}
		return h.handleError(c, err)
	}

	viewer := h.viewer(c)
	if attempt.UserID != userIDFromContext(c) && !viewer.ViewReports {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	quiz, err := h.quizzes.GetByID(c.Context(), attempt.QuizID)
	if err != nil {
		return h.handleError(c, err)
	}

	now := h.now()
	return utils.SendSuccess(c, "review options resolved", fiber.Map{
		"phase":   service.AttemptPhase(quiz, attempt, now),
		"options": service.ReviewOptions(quiz, attempt, viewer, now),
	})
}

func (h *ReviewHandler) combinedOptions(c *fiber.Ctx) error {
	quizID, err := parsePathUint(c, "quizID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid quiz id")
	}

	quiz, err := h.quizzes.GetByID(c.Context(), quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "quiz not found")
		}
		return h.handleError(c, err)
	}

	userID := userIDFromContext(c)
	viewer := h.viewer(c)

	target := &userID
	if requested, err := parseQueryUint(c, "user_id"); err == nil && requested != nil && *requested != userID {
		if !viewer.ViewReports {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		target = requested
	}

	attempts, err := h.attempts.List(c.Context(), repository.AttemptFilter{
		QuizID: &quiz.ID,
		UserID: target,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review options combined",
		service.CombineReviewOptions(quiz, attempts, viewer, h.now()))
}

func (h *ReviewHandler) handleError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
