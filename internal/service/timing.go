package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

// Timing is the effective close time and time limit for one user on one
// quiz, zero meaning "no limit" for either setting.
type Timing struct {
	TimeClose int64 `json:"time_close"`
	TimeLimit int64 `json:"time_limit"`
}

// ResolveTiming applies the most-lenient rule across the quiz defaults and
// every override applying to the user. For each setting independently: a zero
// anywhere means no limit and beats any finite value, otherwise the latest
// (largest) value wins. The zero sentinel is deliberate source behaviour: a
// group's "no close time" outranks even a stricter user override.
func ResolveTiming(quiz models.Quiz, overrides []models.QuizOverride) Timing {
	timing := Timing{TimeClose: quiz.TimeClose, TimeLimit: quiz.TimeLimit}

	for _, override := range overrides {
		if override.TimeClose != nil {
			timing.TimeClose = mostLenient(timing.TimeClose, *override.TimeClose)
		}
		if override.TimeLimit != nil {
			timing.TimeLimit = mostLenient(timing.TimeLimit, *override.TimeLimit)
		}
	}

	return timing
}

func mostLenient(current, candidate int64) int64 {
	if current == 0 || candidate == 0 {
		return 0
	}
	if candidate > current {
		return candidate
	}
	return current
}

// TimeCheckState computes when a background sweep must next look at an
// attempt: nil for previews and for attempts with no deadline at all, the
// earlier of start+limit and close time when both apply, and the grace period
// added once the attempt is already overdue.
func TimeCheckState(timing Timing, timeStart int64, state string, gracePeriod int64, preview bool) *int64 {
	if preview {
		return nil
	}

	var deadline int64
	switch {
	case timing.TimeLimit == 0 && timing.TimeClose == 0:
		return nil
	case timing.TimeLimit == 0:
		deadline = timing.TimeClose
	case timing.TimeClose == 0:
		deadline = timeStart + timing.TimeLimit
	default:
		deadline = timeStart + timing.TimeLimit
		if timing.TimeClose < deadline {
			deadline = timing.TimeClose
		}
	}

	if state == models.AttemptOverdue {
		deadline += gracePeriod
	}

	return &deadline
}

// TimingService resolves effective timing per user, caching results in redis
// since override sets change rarely compared to how often attempts consult
// them.
type TimingService interface {
	EffectiveTiming(ctx context.Context, quiz models.Quiz, userID uint) (Timing, error)
	// Invalidate drops the cached timing for one user, or for the whole quiz
	// when userID is zero.
	Invalidate(ctx context.Context, quizID, userID uint) error
}

type timingService struct {
	overrides repository.OverrideRepository
	redis     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
}

// NewTimingService constructs the timing resolver. The redis client may be
// nil, which disables caching.
func NewTimingService(overrides repository.OverrideRepository, redisClient *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) TimingService {
	return &timingService{
		overrides: overrides,
		redis:     redisClient,
		cacheTTL:  cacheTTL,
		logger:    logger.With().Str("component", "timing_service").Logger(),
	}
}

func timingCacheKey(quizID, userID uint) string {
	return fmt.Sprintf("quiz:%d:timing:%d", quizID, userID)
}

func (s *timingService) EffectiveTiming(ctx context.Context, quiz models.Quiz, userID uint) (Timing, error) {
	key := timingCacheKey(quiz.ID, userID)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var timing Timing
			if err := json.Unmarshal(cached, &timing); err == nil {
				return timing, nil
			}
		}
	}

	overrides, err := s.overrides.ListForUser(ctx, quiz.ID, userID)
	if err != nil {
		return Timing{}, fmt.Errorf("list overrides for quiz %d: %w", quiz.ID, err)
	}

	timing := ResolveTiming(quiz, overrides)

	if s.redis != nil {
		payload, err := json.Marshal(timing)
		if err == nil {
			if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Uint("quiz_id", quiz.ID).Msg("failed to cache effective timing")
			}
		}
	}

	return timing, nil
}

func (s *timingService) Invalidate(ctx context.Context, quizID, userID uint) error {
	if s.redis == nil {
		return nil
	}

	if userID != 0 {
		return s.redis.Del(ctx, timingCacheKey(quizID, userID)).Err()
	}

	pattern := fmt.Sprintf("quiz:%d:timing:*", quizID)
	iter := s.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}

	return iter.Err()
}
