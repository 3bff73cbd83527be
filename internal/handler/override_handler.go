package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/dto"
	"github.com/openlms/quiz-api/internal/service"
	"github.com/openlms/quiz-api/internal/utils"
)

// OverrideHandler manages timing override endpoints.
type OverrideHandler struct {
	service   service.OverrideService
	policy    service.AccessPolicy
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewOverrideHandler builds an override handler instance.
func NewOverrideHandler(svc service.OverrideService, policy service.AccessPolicy, validator *validator.Validate, logger zerolog.Logger) *OverrideHandler {
	return &OverrideHandler{
		service:   svc,
		policy:    policy,
		validator: validator,
		logger:    logger.With().Str("component", "override_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *OverrideHandler) Register(router fiber.Router) {
	router.Get("/quizzes/:quizID/overrides", h.list)
	router.Post("/quizzes/:quizID/overrides", h.create)
	router.Put("/overrides/:id", h.update)
	router.Delete("/overrides/:id", h.delete)
}

func (h *OverrideHandler) authorize(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if !h.policy.Allows(c.Context(), userID, userRoleFromContext(c), service.CapabilityManageAttempts) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
	return nil
}

func (h *OverrideHandler) list(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}

	quizID, err := parsePathUint(c, "quizID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid quiz id")
	}

	overrides, err := h.service.List(c.Context(), quizID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "overrides retrieved", overrides)
}

func (h *OverrideHandler) create(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}

	quizID, err := parsePathUint(c, "quizID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid quiz id")
	}

	var payload dto.OverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	override, err := h.service.Create(c.Context(), quizID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "override created", override)
}

func (h *OverrideHandler) update(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}

	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid override id")
	}

	var payload dto.OverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	override, err := h.service.Update(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "override updated", override)
}

func (h *OverrideHandler) delete(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}

	id, err := parsePathUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid override id")
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "override deleted", nil)
}

func (h *OverrideHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "quiz not found")
	case errors.Is(err, service.ErrOverrideNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "override not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
