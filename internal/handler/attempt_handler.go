package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/dto"
	"github.com/openlms/quiz-api/internal/engine"
	"github.com/openlms/quiz-api/internal/repository"
	"github.com/openlms/quiz-api/internal/service"
	"github.com/openlms/quiz-api/internal/utils"
)

// AttemptHandler manages attempt lifecycle endpoints.
type AttemptHandler struct {
	service   service.AttemptService
	quizzes   repository.QuizRepository
	attempts  repository.AttemptRepository
	policy    service.AccessPolicy
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAttemptHandler builds an attempt handler instance.
func NewAttemptHandler(
	svc service.AttemptService,
	quizzes repository.QuizRepository,
	attempts repository.AttemptRepository,
	policy service.AccessPolicy,
	validator *validator.Validate,
	logger zerolog.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		service:   svc,
		quizzes:   quizzes,
		attempts:  attempts,
		policy:    policy,
		validator: validator,
		logger:    logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.start)
	router.Post("/precreate", h.preCreate)
	router.Post("/refresh-deadlines", h.refreshDeadlines)
	router.Post("/:id/start", h.startPreCreated)
	router.Post("/:id/submit", h.submit)
	// Registered before the parameterised delete so "previews" is not read as an id.
	router.Delete("/previews", h.deletePreviews)
	router.Delete("/:id", h.delete)
}

func (h *AttemptHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	filter := repository.AttemptFilter{}

	quizID, err := parseQueryUint(c, "quiz_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid quiz_id")
	}
	filter.QuizID = quizID

	if requested, err := parseQueryUint(c, "user_id"); err == nil && requested != nil && *requested != userID {
		if !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityViewReports) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		filter.UserID = requested
	} else {
		filter.UserID = &userID
	}

	attempts, err := h.attempts.List(c.Context(), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempts retrieved", dto.NewAttemptResponses(attempts))
}

func (h *AttemptHandler) start(c *fiber.Ctx) error {
	var payload dto.StartAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	userID := userIDFromContext(c)
	if payload.Preview && !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityPreview) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	attempt, err := h.service.Start(c.Context(), service.StartAttemptParams{
		QuizID:  payload.QuizID,
		UserID:  userID,
		Preview: payload.Preview,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt started", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) preCreate(c *fiber.Ctx) error {
	var payload dto.StartAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	userID := userIDFromContext(c)
	if payload.Preview && !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityPreview) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	attempt, err := h.service.PreCreate(c.Context(), service.StartAttemptParams{
		QuizID:  payload.QuizID,
		UserID:  userID,
		Preview: payload.Preview,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt pre-created", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) startPreCreated(c *fiber.Ctx) error {
	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	attempt, err := h.service.StartPreCreated(c.Context(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt started", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	attempt, err := h.service.Submit(c.Context(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt submitted", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) delete(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityManageAttempts) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	quizID, err := parseQueryUint(c, "quiz_id")
	if err != nil || quizID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "quiz_id is required")
	}

	quiz, err := h.quizzes.GetByID(c.Context(), *quizID)
	if err != nil {
		return h.handleError(c, service.ErrQuizNotFound)
	}

	if err := h.service.Delete(c.Context(), id, quiz); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt deleted", nil)
}

func (h *AttemptHandler) deletePreviews(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityPreview) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	quizID, err := parseQueryUint(c, "quiz_id")
	if err != nil || quizID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "quiz_id is required")
	}

	quiz, err := h.quizzes.GetByID(c.Context(), *quizID)
	if err != nil {
		return h.handleError(c, service.ErrQuizNotFound)
	}

	ofUser, err := parseQueryUint(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user_id")
	}

	deleted, err := h.service.DeletePreviews(c.Context(), quiz, ofUser)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "preview attempts deleted", fiber.Map{"deleted": deleted})
}

func (h *AttemptHandler) refreshDeadlines(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityManageAttempts) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var payload dto.RefreshDeadlinesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rows, err := h.service.RefreshDeadlines(c.Context(), repository.DeadlineFilter{
		CourseID: payload.CourseID,
		QuizID:   payload.QuizID,
		UserID:   payload.UserID,
		GroupID:  payload.GroupID,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "deadlines refreshed", fiber.Map{"rows": rows})
}

func (h *AttemptHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "quiz not found")
	case errors.Is(err, service.ErrAttemptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "attempt not found")
	case errors.Is(err, service.ErrAttemptAccessDenied):
		return utils.SendError(c, fiber.StatusForbidden, "attempt belongs to another user")
	case errors.Is(err, service.ErrAttemptNotInProgress):
		return utils.SendError(c, fiber.StatusConflict, "attempt is not in progress")
	case errors.Is(err, service.ErrAttemptAlreadyStarted):
		return utils.SendError(c, fiber.StatusConflict, "attempt has already been started")
	case errors.Is(err, service.ErrQuizUngradeable):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "quiz cannot be graded")
	case errors.Is(err, service.ErrDraftQuestion):
		return utils.SendError(c, fiber.StatusConflict, "quiz contains a question with no ready version")
	case errors.Is(err, service.ErrNotEnoughQuestions):
		return utils.SendError(c, fiber.StatusConflict, "not enough questions to fill the quiz")
	case errors.Is(err, service.ErrForcedQuestionUnavailable):
		return utils.SendError(c, fiber.StatusConflict, "forced question is unavailable")
	case errors.Is(err, engine.ErrNoReadyVersion):
		return utils.SendError(c, fiber.StatusConflict, "quiz contains a question with no ready version")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
