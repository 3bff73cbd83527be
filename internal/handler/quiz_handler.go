package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/service"
	"github.com/openlms/quiz-api/internal/utils"
)

// QuizHandler manages quiz configuration endpoints.
type QuizHandler struct {
	service service.QuizService
	policy  service.AccessPolicy
	logger  zerolog.Logger
}

// NewQuizHandler builds a quiz handler instance.
func NewQuizHandler(svc service.QuizService, policy service.AccessPolicy, logger zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		service: svc,
		policy:  policy,
		logger:  logger.With().Str("component", "quiz_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *QuizHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Post("", h.create)
}

func (h *QuizHandler) get(c *fiber.Ctx) error {
	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid quiz id")
	}

	quiz, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "quiz retrieved", quiz)
}

func (h *QuizHandler) create(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityManageAttempts) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	quiz, err := h.service.Import(c.Context(), c.Body())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "quiz created", quiz)
}

func (h *QuizHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "quiz not found")
	case errors.Is(err, service.ErrInvalidQuizPayload), errors.Is(err, service.ErrSlotShape):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
