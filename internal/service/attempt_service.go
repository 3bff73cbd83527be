package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/engine"
	"github.com/openlms/quiz-api/internal/events"
	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/observability"
	"github.com/openlms/quiz-api/internal/repository"
)

// ErrQuizNotFound indicates the quiz id could not be resolved.
var ErrQuizNotFound = errors.New("quiz not found")

// ErrAttemptNotFound indicates the attempt id could not be resolved.
var ErrAttemptNotFound = errors.New("attempt not found")

// ErrAttemptAccessDenied indicates the attempt exists but belongs to a
// different user. Kept distinct from not-found so callers can route the two
// to different responses.
var ErrAttemptAccessDenied = errors.New("attempt belongs to another user")

// ErrAttemptNotInProgress indicates a submit was requested for an attempt
// that is not open.
var ErrAttemptNotInProgress = errors.New("attempt is not in progress")

// ErrAttemptAlreadyStarted indicates a pre-created attempt has already been
// promoted out of the NOT_STARTED state.
var ErrAttemptAlreadyStarted = errors.New("attempt has already been started")

// ErrQuizUngradeable indicates the quiz's questions sum to zero marks while a
// non-zero target grade is configured, so no attempt could ever be graded.
var ErrQuizUngradeable = errors.New("quiz has a target grade but no gradeable questions")

// CreateAttemptParams carries everything needed to construct an in-memory
// attempt.
type CreateAttemptParams struct {
	Quiz          models.Quiz
	UserID        uint
	AttemptNumber int
	TimeStart     int64
	Preview       bool
}

// StartAttemptParams drives the full start pipeline: create, build, persist.
type StartAttemptParams struct {
	QuizID    uint
	UserID    uint
	Preview   bool
	TimeStart int64
	// Test-only overrides, keyed by slot number.
	ForcedQuestions map[int]uint
	ForcedVariants  map[int]int
}

// AttemptService owns the attempt lifecycle: creation, state transitions,
// deletion and the bulk deadline refresh.
type AttemptService interface {
	Create(ctx context.Context, params CreateAttemptParams) (models.Attempt, error)
	Start(ctx context.Context, params StartAttemptParams) (models.Attempt, error)
	PreCreate(ctx context.Context, params StartAttemptParams) (models.Attempt, error)
	StartPreCreated(ctx context.Context, attemptID, userID uint) (models.Attempt, error)
	SaveStarted(ctx context.Context, quiz models.Quiz, usage *engine.Usage, attempt *models.Attempt) error
	SaveNotStarted(ctx context.Context, quiz models.Quiz, usage *engine.Usage, attempt *models.Attempt) error
	Submit(ctx context.Context, attemptID, userID uint) (models.Attempt, error)
	Delete(ctx context.Context, attemptID uint, quiz models.Quiz) error
	DeletePreviews(ctx context.Context, quiz models.Quiz, userID *uint) (int, error)
	RefreshDeadlines(ctx context.Context, filter repository.DeadlineFilter) (int64, error)
}

type attemptService struct {
	attempts   repository.AttemptRepository
	quizzes    repository.QuizRepository
	grades     repository.GradeRepository
	engine     engine.Engine
	builder    *AttemptBuilder
	timing     TimingService
	dispatcher events.Dispatcher
	tx         repository.Transactor
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewAttemptService constructs the lifecycle manager.
func NewAttemptService(
	attempts repository.AttemptRepository,
	quizzes repository.QuizRepository,
	grades repository.GradeRepository,
	eng engine.Engine,
	builder *AttemptBuilder,
	timing TimingService,
	dispatcher events.Dispatcher,
	tx repository.Transactor,
	logger zerolog.Logger,
) AttemptService {
	return &attemptService{
		attempts:   attempts,
		quizzes:    quizzes,
		grades:     grades,
		engine:     eng,
		builder:    builder,
		timing:     timing,
		dispatcher: dispatcher,
		tx:         tx,
		logger:     logger.With().Str("component", "attempt_service").Logger(),
		tracer:     otel.Tracer("github.com/openlms/quiz-api/internal/service/attempt"),
		now:        time.Now,
	}
}

func (s *attemptService) Create(ctx context.Context, params CreateAttemptParams) (models.Attempt, error) {
	if !params.Quiz.IsGradeable() {
		return models.Attempt{}, ErrQuizUngradeable
	}

	timeStart := params.TimeStart
	if timeStart == 0 {
		timeStart = s.now().Unix()
	}

	return models.Attempt{
		QuizID:       params.Quiz.ID,
		UserID:       params.UserID,
		Attempt:      params.AttemptNumber,
		State:        models.AttemptNotStarted,
		Preview:      params.Preview,
		TimeStart:    timeStart,
		TimeModified: timeStart,
	}, nil
}

func (s *attemptService) Start(ctx context.Context, params StartAttemptParams) (models.Attempt, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.start", trace.WithAttributes(
		attribute.Int64("quiz.id", int64(params.QuizID)),
		attribute.Int64("user.id", int64(params.UserID)),
		attribute.Bool("attempt.preview", params.Preview),
	))
	defer span.End()

	quiz, err := s.quizzes.GetByID(ctx, params.QuizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrQuizNotFound
		}
		return models.Attempt{}, err
	}

	number := 1
	var previous *models.Attempt
	if last, err := s.attempts.GetLast(ctx, quiz.ID, params.UserID); err == nil {
		number = last.Attempt + 1
		previous = &last
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Attempt{}, err
	}

	attempt, err := s.Create(ctx, CreateAttemptParams{
		Quiz:          quiz,
		UserID:        params.UserID,
		AttemptNumber: number,
		TimeStart:     params.TimeStart,
		Preview:       params.Preview,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_create_failed")
		return models.Attempt{}, err
	}

	usage := s.engine.NewUsage(quiz.ID, params.Preview)

	// Everything from question registration to the attempt insert happens in
	// one transaction: a partially built attempt must never be observable.
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if quiz.AttemptOnLast && previous != nil && !params.Preview {
			if err := s.builder.BuildOnLast(ctx, quiz, &attempt, usage, *previous); err != nil {
				return err
			}
		} else {
			if err := s.builder.BuildNewAttempt(ctx, quiz, &attempt, usage, BuildOptions{
				UserID:          params.UserID,
				ForcedQuestions: params.ForcedQuestions,
				ForcedVariants:  params.ForcedVariants,
			}); err != nil {
				return err
			}
		}

		return s.SaveStarted(ctx, quiz, usage, &attempt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_start_failed")
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (s *attemptService) SaveStarted(ctx context.Context, quiz models.Quiz, usage *engine.Usage, attempt *models.Attempt) error {
	timing, err := s.timing.EffectiveTiming(ctx, quiz, attempt.UserID)
	if err != nil {
		return err
	}

	attempt.TimeCheckState = TimeCheckState(timing, attempt.TimeStart, models.AttemptInProgress, quiz.GracePeriod, attempt.Preview)

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var old *models.Attempt

		if attempt.ID != 0 {
			existing, err := s.attempts.GetByID(ctx, attempt.ID)
			if err != nil {
				return err
			}
			if existing.State != models.AttemptNotStarted {
				return fmt.Errorf("%w: attempt %d is %s", ErrAttemptAlreadyStarted, existing.ID, existing.State)
			}

			// The attempt was pre-created: its questions may have been edited
			// since, so re-validate and upgrade them before promoting.
			if err := s.engine.UpgradeToLatest(ctx, usage); err != nil {
				if errors.Is(err, engine.ErrNoReadyVersion) {
					return fmt.Errorf("%w: %v", ErrDraftQuestion, err)
				}
				return err
			}

			if _, err := s.engine.Save(ctx, usage); err != nil {
				return err
			}

			attempt.UniqueID = usage.ID
			attempt.State = models.AttemptInProgress
			attempt.TimeModified = s.now().Unix()
			if err := s.attempts.Update(ctx, attempt); err != nil {
				return err
			}

			old = &existing
		} else {
			usageID, err := s.engine.Save(ctx, usage)
			if err != nil {
				return err
			}

			attempt.UniqueID = usageID
			attempt.State = models.AttemptInProgress
			attempt.TimeModified = s.now().Unix()
			if err := s.attempts.Create(ctx, attempt); err != nil {
				return err
			}
		}

		s.dispatcher.NotifyStateChange(ctx, events.StateChange{Old: old, New: attempt})

		name := events.EventAttemptStarted
		if attempt.Preview {
			name = events.EventAttemptPreviewStarted
		}

		return s.dispatcher.Fire(ctx, events.Event{
			Name:      name,
			QuizID:    attempt.QuizID,
			UserID:    attempt.UserID,
			AttemptID: attempt.ID,
			Payload:   map[string]interface{}{"attempt_number": attempt.Attempt},
			After:     attempt,
		})
	})
	if err != nil {
		return err
	}

	mode := "normal"
	if attempt.Preview {
		mode = "preview"
	}
	observability.AttemptsStarted().WithLabelValues(mode).Inc()

	s.logger.Info().
		Uint("attempt_id", attempt.ID).
		Uint("quiz_id", attempt.QuizID).
		Uint("user_id", attempt.UserID).
		Bool("preview", attempt.Preview).
		Msg("attempt started")

	return nil
}

func (s *attemptService) SaveNotStarted(ctx context.Context, quiz models.Quiz, usage *engine.Usage, attempt *models.Attempt) error {
	return s.tx.InTransaction(ctx, func(ctx context.Context) error {
		usageID, err := s.engine.Save(ctx, usage)
		if err != nil {
			return err
		}

		attempt.UniqueID = usageID
		attempt.State = models.AttemptNotStarted
		attempt.TimeModified = s.now().Unix()
		if err := s.attempts.Create(ctx, attempt); err != nil {
			return err
		}

		s.dispatcher.NotifyStateChange(ctx, events.StateChange{Old: nil, New: attempt})
		return nil
	})
}

// PreCreate builds an attempt ahead of time and stores it in the NOT_STARTED
// state. The question set is assembled now; promotion re-validates it.
func (s *attemptService) PreCreate(ctx context.Context, params StartAttemptParams) (models.Attempt, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.precreate", trace.WithAttributes(
		attribute.Int64("quiz.id", int64(params.QuizID)),
		attribute.Int64("user.id", int64(params.UserID)),
	))
	defer span.End()

	quiz, err := s.quizzes.GetByID(ctx, params.QuizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrQuizNotFound
		}
		return models.Attempt{}, err
	}

	number := 1
	if last, err := s.attempts.GetLast(ctx, quiz.ID, params.UserID); err == nil {
		number = last.Attempt + 1
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Attempt{}, err
	}

	attempt, err := s.Create(ctx, CreateAttemptParams{
		Quiz:          quiz,
		UserID:        params.UserID,
		AttemptNumber: number,
		TimeStart:     params.TimeStart,
		Preview:       params.Preview,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_precreate_failed")
		return models.Attempt{}, err
	}

	usage := s.engine.NewUsage(quiz.ID, params.Preview)

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.builder.BuildNewAttempt(ctx, quiz, &attempt, usage, BuildOptions{
			UserID:          params.UserID,
			ForcedQuestions: params.ForcedQuestions,
			ForcedVariants:  params.ForcedVariants,
		}); err != nil {
			return err
		}

		return s.SaveNotStarted(ctx, quiz, usage, &attempt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_precreate_failed")
		return models.Attempt{}, err
	}

	return attempt, nil
}

// StartPreCreated promotes a pre-created attempt to IN_PROGRESS in place. The
// stored question set is reloaded and upgraded to the latest ready versions
// before the attempt opens.
func (s *attemptService) StartPreCreated(ctx context.Context, attemptID, userID uint) (models.Attempt, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.promote", trace.WithAttributes(
		attribute.Int64("attempt.id", int64(attemptID)),
	))
	defer span.End()

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrAttemptNotFound
		}
		return models.Attempt{}, err
	}

	if attempt.UserID != userID {
		return models.Attempt{}, ErrAttemptAccessDenied
	}
	if attempt.State != models.AttemptNotStarted {
		return models.Attempt{}, ErrAttemptAlreadyStarted
	}

	quiz, err := s.quizzes.GetByID(ctx, attempt.QuizID)
	if err != nil {
		return models.Attempt{}, err
	}

	usage, err := s.engine.LoadByID(ctx, attempt.UniqueID)
	if err != nil {
		return models.Attempt{}, err
	}

	// The clock starts at promotion, not at pre-creation.
	attempt.TimeStart = s.now().Unix()

	if err := s.SaveStarted(ctx, quiz, usage, &attempt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_promote_failed")
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (s *attemptService) Submit(ctx context.Context, attemptID, userID uint) (models.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrAttemptNotFound
		}
		return models.Attempt{}, err
	}

	if attempt.UserID != userID {
		return models.Attempt{}, ErrAttemptAccessDenied
	}

	if !attempt.InProgress() {
		return models.Attempt{}, ErrAttemptNotInProgress
	}

	quiz, err := s.quizzes.GetByID(ctx, attempt.QuizID)
	if err != nil {
		return models.Attempt{}, err
	}

	usage, err := s.engine.LoadByID(ctx, attempt.UniqueID)
	if err != nil {
		return models.Attempt{}, err
	}

	old := attempt
	sum := usage.SumMarks()

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		attempt.State = models.AttemptFinished
		attempt.TimeFinish = s.now().Unix()
		attempt.TimeModified = attempt.TimeFinish
		attempt.TimeCheckState = nil
		attempt.SumGrades = &sum

		if err := s.attempts.Update(ctx, &attempt); err != nil {
			return err
		}

		s.dispatcher.NotifyStateChange(ctx, events.StateChange{Old: &old, New: &attempt})

		if attempt.Preview {
			return nil
		}

		return s.saveBestGrade(ctx, quiz, attempt.UserID)
	})
	if err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (s *attemptService) Delete(ctx context.Context, attemptID uint, quiz models.Quiz) error {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAttemptNotFound
		}
		return err
	}

	// Ownership mismatch is a caller bug but not worth failing the request
	// over: log and bail out quietly.
	if attempt.QuizID != quiz.ID {
		s.logger.Warn().
			Uint("attempt_id", attempt.ID).
			Uint("attempt_quiz_id", attempt.QuizID).
			Uint("stated_quiz_id", quiz.ID).
			Msg("attempt does not belong to the stated quiz, skipping delete")
		return nil
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.engine.Delete(ctx, attempt.UniqueID); err != nil {
			return err
		}

		if err := s.attempts.Delete(ctx, attempt.ID); err != nil {
			return err
		}

		if !attempt.Preview {
			if err := s.dispatcher.Fire(ctx, events.Event{
				Name:      events.EventAttemptDeleted,
				QuizID:    attempt.QuizID,
				UserID:    attempt.UserID,
				AttemptID: attempt.ID,
				Before:    &attempt,
			}); err != nil {
				return err
			}
			s.dispatcher.NotifyStateChange(ctx, events.StateChange{Old: &attempt, New: nil})
		}

		return s.saveBestGrade(ctx, quiz, attempt.UserID)
	})
	if err != nil {
		return err
	}

	observability.AttemptsDeleted().Inc()
	return nil
}

func (s *attemptService) DeletePreviews(ctx context.Context, quiz models.Quiz, userID *uint) (int, error) {
	preview := true
	previews, err := s.attempts.List(ctx, repository.AttemptFilter{
		QuizID:  &quiz.ID,
		UserID:  userID,
		Preview: &preview,
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, attempt := range previews {
		if err := s.Delete(ctx, attempt.ID, quiz); err != nil {
			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}

func (s *attemptService) RefreshDeadlines(ctx context.Context, filter repository.DeadlineFilter) (int64, error) {
	rows, err := s.attempts.UpdateDeadlines(ctx, filter)
	if err != nil {
		return 0, err
	}

	observability.DeadlineRefreshRows().Add(float64(rows))
	s.logger.Info().Int64("rows", rows).Msg("refreshed attempt deadlines")
	return rows, nil
}

// saveBestGrade recomputes the user's stored quiz grade from their remaining
// non-preview attempts, deleting the record when none remain.
func (s *attemptService) saveBestGrade(ctx context.Context, quiz models.Quiz, userID uint) error {
	preview := false
	remaining, err := s.attempts.List(ctx, repository.AttemptFilter{
		QuizID:  &quiz.ID,
		UserID:  &userID,
		Preview: &preview,
	})
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		return s.grades.Delete(ctx, quiz.ID, userID)
	}

	grade, _ := CalculateQuizGrade(quiz, remaining)
	return s.grades.Upsert(ctx, &models.QuizGrade{
		QuizID: quiz.ID,
		UserID: userID,
		Grade:  grade,
	})
}
