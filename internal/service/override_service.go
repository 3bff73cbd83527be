package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/dto"
	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

// ErrOverrideNotFound indicates the override id could not be resolved.
var ErrOverrideNotFound = errors.New("override not found")

// OverrideService manages timing overrides. Every mutation drops the cached
// timing it may have changed and refreshes the deadlines of open attempts so
// running sittings pick up the new close time without waiting for a page load.
type OverrideService interface {
	List(ctx context.Context, quizID uint) ([]dto.OverrideResponse, error)
	Create(ctx context.Context, quizID uint, req dto.OverrideRequest) (dto.OverrideResponse, error)
	Update(ctx context.Context, id uint, req dto.OverrideRequest) (dto.OverrideResponse, error)
	Delete(ctx context.Context, id uint) error
}

type overrideService struct {
	overrides repository.OverrideRepository
	quizzes   repository.QuizRepository
	attempts  AttemptService
	timing    TimingService
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOverrideService constructs the override manager.
func NewOverrideService(
	overrides repository.OverrideRepository,
	quizzes repository.QuizRepository,
	attempts AttemptService,
	timing TimingService,
	logger zerolog.Logger,
) OverrideService {
	return &overrideService{
		overrides: overrides,
		quizzes:   quizzes,
		attempts:  attempts,
		timing:    timing,
		logger:    logger.With().Str("component", "override_service").Logger(),
		now:       time.Now,
	}
}

func (s *overrideService) List(ctx context.Context, quizID uint) ([]dto.OverrideResponse, error) {
	overrides, err := s.overrides.ListForQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.OverrideResponse, len(overrides))
	for i, override := range overrides {
		responses[i] = dto.NewOverrideResponse(override)
	}
	return responses, nil
}

func (s *overrideService) Create(ctx context.Context, quizID uint, req dto.OverrideRequest) (dto.OverrideResponse, error) {
	if _, err := s.quizzes.GetByID(ctx, quizID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.OverrideResponse{}, ErrQuizNotFound
		}
		return dto.OverrideResponse{}, err
	}

	override := models.QuizOverride{
		QuizID:    quizID,
		UserID:    req.UserID,
		GroupID:   req.GroupID,
		TimeClose: req.TimeClose,
		TimeLimit: req.TimeLimit,
	}
	if err := s.overrides.Create(ctx, &override); err != nil {
		return dto.OverrideResponse{}, err
	}

	s.propagate(ctx, override)
	return dto.NewOverrideResponse(override), nil
}

func (s *overrideService) Update(ctx context.Context, id uint, req dto.OverrideRequest) (dto.OverrideResponse, error) {
	override, err := s.overrides.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.OverrideResponse{}, ErrOverrideNotFound
		}
		return dto.OverrideResponse{}, err
	}

	override.UserID = req.UserID
	override.GroupID = req.GroupID
	override.TimeClose = req.TimeClose
	override.TimeLimit = req.TimeLimit
	if err := s.overrides.Update(ctx, &override); err != nil {
		return dto.OverrideResponse{}, err
	}

	s.propagate(ctx, override)
	return dto.NewOverrideResponse(override), nil
}

func (s *overrideService) Delete(ctx context.Context, id uint) error {
	override, err := s.overrides.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOverrideNotFound
		}
		return err
	}

	if err := s.overrides.Delete(ctx, id); err != nil {
		return err
	}

	s.propagate(ctx, override)
	return nil
}

// propagate pushes an override change out to cached timings and open
// attempts. Failures here leave the stored override intact, so they are
// logged rather than surfaced.
func (s *overrideService) propagate(ctx context.Context, override models.QuizOverride) {
	var userID uint
	if override.UserID != nil {
		userID = *override.UserID
	}
	if err := s.timing.Invalidate(ctx, override.QuizID, userID); err != nil {
		s.logger.Warn().Err(err).Uint("quiz_id", override.QuizID).Msg("failed to invalidate timing cache")
	}

	filter := repository.DeadlineFilter{
		QuizID:  &override.QuizID,
		UserID:  override.UserID,
		GroupID: override.GroupID,
	}
	if _, err := s.attempts.RefreshDeadlines(ctx, filter); err != nil {
		s.logger.Error().Err(err).Uint("quiz_id", override.QuizID).Msg("failed to refresh attempt deadlines")
	}
}
