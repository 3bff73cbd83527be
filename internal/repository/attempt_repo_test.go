package repository_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
	"github.com/openlms/quiz-api/internal/service"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One shared in-memory database per test, named so parallel tests never
	// see each other's tables.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Quiz{},
		&models.QuizSlot{},
		&models.QuizSection{},
		&models.Attempt{},
		&models.QuizOverride{},
		&models.GroupMember{},
		&models.QuizGrade{},
		&models.Question{},
		&models.QuestionUsage{},
		&models.UsageQuestion{},
	))

	return db
}

func int64Ptr(v int64) *int64 { return &v }

func uintPtr(v uint) *uint { return &v }

func seedAttempt(t *testing.T, db *gorm.DB, attempt models.Attempt) models.Attempt {
	t.Helper()
	require.NoError(t, db.Create(&attempt).Error)
	return attempt
}

func reload(t *testing.T, repo repository.AttemptRepository, id uint) models.Attempt {
	t.Helper()
	attempt, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return attempt
}

// The bulk refresh statement must agree, row for row, with the in-process
// timing resolver used when a single attempt is saved.
func TestUpdateDeadlinesMatchesTimingResolver(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	quiz := models.Quiz{CourseID: 1, Name: "Algebra", TimeLimit: 1000, TimeClose: 5000, GracePeriod: 300, SumGrades: 4, Grade: 10}
	require.NoError(t, db.Create(&quiz).Error)

	userOverride := models.QuizOverride{QuizID: quiz.ID, UserID: uintPtr(3), TimeLimit: int64Ptr(2000)}
	require.NoError(t, db.Create(&userOverride).Error)
	groupOverride := models.QuizOverride{QuizID: quiz.ID, GroupID: uintPtr(7), TimeLimit: int64Ptr(0)}
	require.NoError(t, db.Create(&groupOverride).Error)
	require.NoError(t, db.Create(&models.GroupMember{GroupID: 7, UserID: 4}).Error)

	withUserOverride := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptInProgress, TimeStart: 100})
	withGroupOverride := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 4, Attempt: 1, UniqueID: 2, State: models.AttemptInProgress, TimeStart: 100})
	plain := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 5, Attempt: 1, UniqueID: 3, State: models.AttemptInProgress, TimeStart: 100})
	overdue := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 5, Attempt: 2, UniqueID: 4, State: models.AttemptOverdue, TimeStart: 100})
	preview := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 3, Attempt: 1, UniqueID: 5, State: models.AttemptInProgress, Preview: true, TimeStart: 100, TimeCheckState: int64Ptr(42)})
	finished := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 6, Attempt: 1, UniqueID: 6, State: models.AttemptFinished, TimeStart: 100, TimeCheckState: int64Ptr(42)})

	rows, err := repo.UpdateDeadlines(context.Background(), repository.DeadlineFilter{QuizID: &quiz.ID})
	require.NoError(t, err)
	require.Equal(t, int64(4), rows)

	cases := []struct {
		name      string
		attempt   models.Attempt
		overrides []models.QuizOverride
	}{
		{"user override", withUserOverride, []models.QuizOverride{userOverride}},
		{"group override", withGroupOverride, []models.QuizOverride{groupOverride}},
		{"no override", plain, nil},
		{"overdue grace", overdue, nil},
	}

	for _, tc := range cases {
		got := reload(t, repo, tc.attempt.ID)

		timing := service.ResolveTiming(quiz, tc.overrides)
		want := service.TimeCheckState(timing, tc.attempt.TimeStart, tc.attempt.State, quiz.GracePeriod, false)

		require.NotNil(t, got.TimeCheckState, tc.name)
		require.NotNil(t, want, tc.name)
		require.Equal(t, *want, *got.TimeCheckState, tc.name)
	}

	// Previews and closed attempts keep whatever they had.
	require.Equal(t, int64(42), *reload(t, repo, preview.ID).TimeCheckState)
	require.Equal(t, int64(42), *reload(t, repo, finished.ID).TimeCheckState)
}

func TestUpdateDeadlinesUnlimitedQuizClearsCheckState(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	quiz := models.Quiz{CourseID: 1, Name: "Untimed", SumGrades: 1, Grade: 10}
	require.NoError(t, db.Create(&quiz).Error)

	attempt := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptInProgress, TimeStart: 100, TimeCheckState: int64Ptr(42)})

	rows, err := repo.UpdateDeadlines(context.Background(), repository.DeadlineFilter{QuizID: &quiz.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	require.Nil(t, reload(t, repo, attempt.ID).TimeCheckState)
}

func TestUpdateDeadlinesScopesByUserAndGroup(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	quiz := models.Quiz{CourseID: 1, Name: "Scoped", TimeLimit: 1000, SumGrades: 1, Grade: 10}
	require.NoError(t, db.Create(&quiz).Error)
	require.NoError(t, db.Create(&models.GroupMember{GroupID: 7, UserID: 4}).Error)

	userThree := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptInProgress, TimeStart: 100})
	userFour := seedAttempt(t, db, models.Attempt{QuizID: quiz.ID, UserID: 4, Attempt: 1, UniqueID: 2, State: models.AttemptInProgress, TimeStart: 100})

	userID := uint(3)
	rows, err := repo.UpdateDeadlines(context.Background(), repository.DeadlineFilter{QuizID: &quiz.ID, UserID: &userID})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)
	require.NotNil(t, reload(t, repo, userThree.ID).TimeCheckState)
	require.Nil(t, reload(t, repo, userFour.ID).TimeCheckState)

	groupID := uint(7)
	rows, err = repo.UpdateDeadlines(context.Background(), repository.DeadlineFilter{QuizID: &quiz.ID, GroupID: &groupID})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)
	require.NotNil(t, reload(t, repo, userFour.ID).TimeCheckState)
}

func TestUpdateDeadlinesScopesByCourse(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	inCourse := models.Quiz{CourseID: 1, Name: "In", TimeLimit: 1000, SumGrades: 1, Grade: 10}
	require.NoError(t, db.Create(&inCourse).Error)
	otherCourse := models.Quiz{CourseID: 2, Name: "Out", TimeLimit: 1000, SumGrades: 1, Grade: 10}
	require.NoError(t, db.Create(&otherCourse).Error)

	seedAttempt(t, db, models.Attempt{QuizID: inCourse.ID, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptInProgress, TimeStart: 100})
	untouched := seedAttempt(t, db, models.Attempt{QuizID: otherCourse.ID, UserID: 3, Attempt: 1, UniqueID: 2, State: models.AttemptInProgress, TimeStart: 100})

	courseID := uint(1)
	rows, err := repo.UpdateDeadlines(context.Background(), repository.DeadlineFilter{CourseID: &courseID})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)
	require.Nil(t, reload(t, repo, untouched.ID).TimeCheckState)
}

func TestListDueOrdersAndLimits(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	later := seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptInProgress, TimeCheckState: int64Ptr(200)})
	earlier := seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 4, Attempt: 1, UniqueID: 2, State: models.AttemptOverdue, TimeCheckState: int64Ptr(100)})
	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 5, Attempt: 1, UniqueID: 3, State: models.AttemptInProgress, TimeCheckState: int64Ptr(900)})
	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 6, Attempt: 1, UniqueID: 4, State: models.AttemptFinished, TimeCheckState: int64Ptr(50)})
	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 7, Attempt: 1, UniqueID: 5, State: models.AttemptInProgress})

	due, err := repo.ListDue(context.Background(), 500, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, earlier.ID, due[0].ID)
	require.Equal(t, later.ID, due[1].ID)

	due, err = repo.ListDue(context.Background(), 500, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, earlier.ID, due[0].ID)
}

func TestGetLastIgnoresPreviews(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptFinished})
	want := seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 2, UniqueID: 2, State: models.AttemptFinished})
	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 3, UniqueID: 3, State: models.AttemptFinished, Preview: true})

	last, err := repo.GetLast(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, want.ID, last.ID)

	_, err = repo.GetLast(context.Background(), 1, 99)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListFiltersByStateAndPreview(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAttemptRepository(db)

	open := seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 1, UniqueID: 1, State: models.AttemptInProgress})
	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 2, UniqueID: 2, State: models.AttemptFinished})
	seedAttempt(t, db, models.Attempt{QuizID: 1, UserID: 3, Attempt: 3, UniqueID: 3, State: models.AttemptInProgress, Preview: true})

	quizID := uint(1)
	userID := uint(3)
	noPreview := false
	attempts, err := repo.List(context.Background(), repository.AttemptFilter{
		QuizID:  &quizID,
		UserID:  &userID,
		States:  []string{models.AttemptInProgress},
		Preview: &noPreview,
	})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, open.ID, attempts[0].ID)
}
