package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openlms/quiz-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func int64Ptr(v int64) *int64 { return &v }

func uintPtr(v uint) *uint { return &v }

func TestResolveTimingNoOverrides(t *testing.T) {
	quiz := models.Quiz{TimeClose: 5000, TimeLimit: 1200}

	timing := ResolveTiming(quiz, nil)
	require.Equal(t, int64(5000), timing.TimeClose)
	require.Equal(t, int64(1200), timing.TimeLimit)
}

func TestResolveTimingLatestValueWins(t *testing.T) {
	quiz := models.Quiz{TimeClose: 5000, TimeLimit: 1000}
	overrides := []models.QuizOverride{
		{GroupID: uintPtr(7), TimeLimit: int64Ptr(1500)},
		{UserID: uintPtr(3), TimeLimit: int64Ptr(2000), TimeClose: int64Ptr(4000)},
	}

	timing := ResolveTiming(quiz, overrides)
	require.Equal(t, int64(2000), timing.TimeLimit)
	// 4000 is stricter than the quiz default, so the default stands.
	require.Equal(t, int64(5000), timing.TimeClose)
}

func TestResolveTimingZeroMeansUnlimited(t *testing.T) {
	quiz := models.Quiz{TimeLimit: 1000}
	overrides := []models.QuizOverride{
		{GroupID: uintPtr(7), TimeLimit: int64Ptr(0)},
		{UserID: uintPtr(3), TimeLimit: int64Ptr(2000)},
	}

	// A zero anywhere means no limit, regardless of any stricter override.
	timing := ResolveTiming(quiz, overrides)
	require.Equal(t, int64(0), timing.TimeLimit)
}

func TestResolveTimingOnlyGroupOverride(t *testing.T) {
	quiz := models.Quiz{TimeLimit: 1000}
	overrides := []models.QuizOverride{
		{GroupID: uintPtr(7), TimeLimit: int64Ptr(1500)},
	}

	timing := ResolveTiming(quiz, overrides)
	require.Equal(t, int64(1500), timing.TimeLimit)
}

func TestResolveTimingIdempotent(t *testing.T) {
	quiz := models.Quiz{TimeClose: 5000, TimeLimit: 1000}
	overrides := []models.QuizOverride{
		{UserID: uintPtr(3), TimeLimit: int64Ptr(2000)},
		{GroupID: uintPtr(7), TimeClose: int64Ptr(0)},
	}

	first := ResolveTiming(quiz, overrides)
	second := ResolveTiming(quiz, overrides)
	require.Equal(t, first, second)
}

func TestTimeCheckStateNoDeadline(t *testing.T) {
	require.Nil(t, TimeCheckState(Timing{}, 100, models.AttemptInProgress, 60, false))
}

func TestTimeCheckStatePreviewNeverTracked(t *testing.T) {
	timing := Timing{TimeClose: 5000, TimeLimit: 1000}
	require.Nil(t, TimeCheckState(timing, 100, models.AttemptInProgress, 60, true))
}

func TestTimeCheckStateEarlierOfLimitAndClose(t *testing.T) {
	timing := Timing{TimeClose: 5000, TimeLimit: 1000}

	deadline := TimeCheckState(timing, 100, models.AttemptInProgress, 0, false)
	require.NotNil(t, deadline)
	require.Equal(t, int64(1100), *deadline)

	timing.TimeLimit = 6000
	deadline = TimeCheckState(timing, 100, models.AttemptInProgress, 0, false)
	require.NotNil(t, deadline)
	require.Equal(t, int64(5000), *deadline)
}

func TestTimeCheckStateOverdueAddsGrace(t *testing.T) {
	timing := Timing{TimeLimit: 1000}

	deadline := TimeCheckState(timing, 100, models.AttemptOverdue, 300, false)
	require.NotNil(t, deadline)
	require.Equal(t, int64(1400), *deadline)
}

type stubOverrideRepo struct {
	overrides []models.QuizOverride
	calls     int
}

func (s *stubOverrideRepo) GetByID(ctx context.Context, id uint) (models.QuizOverride, error) {
	return models.QuizOverride{}, nil
}

func (s *stubOverrideRepo) ListForQuiz(ctx context.Context, quizID uint) ([]models.QuizOverride, error) {
	return s.overrides, nil
}

func (s *stubOverrideRepo) ListForUser(ctx context.Context, quizID, userID uint) ([]models.QuizOverride, error) {
	s.calls++
	return s.overrides, nil
}

func (s *stubOverrideRepo) Create(ctx context.Context, override *models.QuizOverride) error { return nil }
func (s *stubOverrideRepo) Update(ctx context.Context, override *models.QuizOverride) error { return nil }
func (s *stubOverrideRepo) Delete(ctx context.Context, id uint) error                       { return nil }
func (s *stubOverrideRepo) GroupIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	return nil, nil
}

func TestTimingServiceCachesResolvedTiming(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	repo := &stubOverrideRepo{overrides: []models.QuizOverride{
		{UserID: uintPtr(3), TimeLimit: int64Ptr(2000)},
	}}
	svc := NewTimingService(repo, client, time.Minute, testLogger())

	quiz := models.Quiz{ID: 9, TimeLimit: 1000, TimeClose: 5000}

	timing, err := svc.EffectiveTiming(context.Background(), quiz, 3)
	require.NoError(t, err)
	require.Equal(t, int64(2000), timing.TimeLimit)
	require.Equal(t, 1, repo.calls)

	timing, err = svc.EffectiveTiming(context.Background(), quiz, 3)
	require.NoError(t, err)
	require.Equal(t, int64(2000), timing.TimeLimit)
	require.Equal(t, 1, repo.calls, "second resolution should come from cache")
}

func TestTimingServiceInvalidate(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	repo := &stubOverrideRepo{}
	svc := NewTimingService(repo, client, time.Minute, testLogger())
	quiz := models.Quiz{ID: 9, TimeLimit: 1000}

	_, err := svc.EffectiveTiming(context.Background(), quiz, 3)
	require.NoError(t, err)
	_, err = svc.EffectiveTiming(context.Background(), quiz, 4)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)

	require.NoError(t, svc.Invalidate(context.Background(), 9, 3))
	_, err = svc.EffectiveTiming(context.Background(), quiz, 3)
	require.NoError(t, err)
	require.Equal(t, 3, repo.calls)

	// Zero user id wipes the whole quiz.
	require.NoError(t, svc.Invalidate(context.Background(), 9, 0))
	_, err = svc.EffectiveTiming(context.Background(), quiz, 4)
	require.NoError(t, err)
	require.Equal(t, 4, repo.calls)
}

func TestTimingServiceNilRedisDisablesCache(t *testing.T) {
	repo := &stubOverrideRepo{}
	svc := NewTimingService(repo, nil, time.Minute, testLogger())
	quiz := models.Quiz{ID: 9, TimeLimit: 1000}

	_, err := svc.EffectiveTiming(context.Background(), quiz, 3)
	require.NoError(t, err)
	_, err = svc.EffectiveTiming(context.Background(), quiz, 3)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
	require.NoError(t, svc.Invalidate(context.Background(), 9, 3))
}
