package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/events"
	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/observability"
	"github.com/openlms/quiz-api/internal/repository"
)

const defaultSweepBatch = 200

// Sweeper walks attempts whose check time has passed and applies the owning
// quiz's overdue handling. It is the consumer of Attempt.TimeCheckState.
type Sweeper struct {
	attempts   repository.AttemptRepository
	quizzes    repository.QuizRepository
	service    AttemptService
	timing     TimingService
	dispatcher events.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
	batchSize  int
}

// NewSweeper constructs the background sweeper.
func NewSweeper(
	attempts repository.AttemptRepository,
	quizzes repository.QuizRepository,
	service AttemptService,
	timing TimingService,
	dispatcher events.Dispatcher,
	logger zerolog.Logger,
) *Sweeper {
	return &Sweeper{
		attempts:   attempts,
		quizzes:    quizzes,
		service:    service,
		timing:     timing,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "attempt_sweeper").Logger(),
		now:        time.Now,
		batchSize:  defaultSweepBatch,
	}
}

// WithBatchSize overrides how many due attempts one sweep processes.
func (s *Sweeper) WithBatchSize(size int) *Sweeper {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// Run sweeps on the given interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("attempt sweep failed")
			}
		}
	}
}

// SweepOnce processes one batch of due attempts and returns how many were
// transitioned.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	due, err := s.attempts.ListDue(ctx, s.now().Unix(), s.batchSize)
	if err != nil {
		return 0, err
	}

	quizzes := make(map[uint]models.Quiz)
	swept := 0
	for _, attempt := range due {
		quiz, ok := quizzes[attempt.QuizID]
		if !ok {
			quiz, err = s.quizzes.GetByID(ctx, attempt.QuizID)
			if err != nil {
				s.logger.Error().Err(err).Uint("quiz_id", attempt.QuizID).Msg("failed to load quiz for due attempt")
				continue
			}
			quizzes[attempt.QuizID] = quiz
		}

		result, err := s.sweepAttempt(ctx, quiz, attempt)
		if err != nil {
			s.logger.Error().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to transition due attempt")
			continue
		}

		observability.AttemptsSwept().WithLabelValues(result).Inc()
		swept++
	}

	return swept, nil
}

func (s *Sweeper) sweepAttempt(ctx context.Context, quiz models.Quiz, attempt models.Attempt) (string, error) {
	switch attempt.State {
	case models.AttemptInProgress:
		switch quiz.OverdueHandling {
		case models.OverdueGracePeriod:
			return s.markOverdue(ctx, quiz, attempt)
		case models.OverdueAutoAbandon:
			return s.abandon(ctx, attempt)
		default:
			if _, err := s.service.Submit(ctx, attempt.ID, attempt.UserID); err != nil {
				return "", err
			}
			return models.AttemptFinished, nil
		}
	case models.AttemptOverdue:
		// Grace window exhausted.
		return s.abandon(ctx, attempt)
	default:
		return attempt.State, nil
	}
}

func (s *Sweeper) markOverdue(ctx context.Context, quiz models.Quiz, attempt models.Attempt) (string, error) {
	timing, err := s.timing.EffectiveTiming(ctx, quiz, attempt.UserID)
	if err != nil {
		return "", err
	}

	old := attempt
	attempt.State = models.AttemptOverdue
	attempt.TimeModified = s.now().Unix()
	attempt.TimeCheckState = TimeCheckState(timing, attempt.TimeStart, models.AttemptOverdue, quiz.GracePeriod, attempt.Preview)

	if err := s.attempts.Update(ctx, &attempt); err != nil {
		return "", err
	}

	s.dispatcher.NotifyStateChange(ctx, events.StateChange{Old: &old, New: &attempt})
	return models.AttemptOverdue, nil
}

func (s *Sweeper) abandon(ctx context.Context, attempt models.Attempt) (string, error) {
	old := attempt
	attempt.State = models.AttemptAbandoned
	attempt.TimeModified = s.now().Unix()
	attempt.TimeCheckState = nil

	if err := s.attempts.Update(ctx, &attempt); err != nil {
		return "", err
	}

	s.dispatcher.NotifyStateChange(ctx, events.StateChange{Old: &old, New: &attempt})
	return models.AttemptAbandoned, nil
}
