package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlms/quiz-api/internal/models"
)

func float64Ptr(v float64) *float64 { return &v }

func gradedAttempts(marks ...float64) []models.Attempt {
	attempts := make([]models.Attempt, len(marks))
	for i, mark := range marks {
		attempts[i] = models.Attempt{State: models.AttemptFinished, SumGrades: float64Ptr(mark)}
	}
	return attempts
}

func TestCalculateQuizGradeHighestDefault(t *testing.T) {
	quiz := models.Quiz{GradeMethod: models.GradeMethodHighest, SumGrades: 10, Grade: 100}

	grade, ok := CalculateQuizGrade(quiz, gradedAttempts(4, 8, 6))
	require.True(t, ok)
	require.InDelta(t, 80, grade, 1e-9)
}

func TestCalculateQuizGradeFirstAndLast(t *testing.T) {
	quiz := models.Quiz{GradeMethod: models.GradeMethodFirst, SumGrades: 10, Grade: 100}
	grade, ok := CalculateQuizGrade(quiz, gradedAttempts(4, 8, 6))
	require.True(t, ok)
	require.InDelta(t, 40, grade, 1e-9)

	quiz.GradeMethod = models.GradeMethodLast
	grade, ok = CalculateQuizGrade(quiz, gradedAttempts(4, 8, 6))
	require.True(t, ok)
	require.InDelta(t, 60, grade, 1e-9)
}

func TestCalculateQuizGradeAverage(t *testing.T) {
	quiz := models.Quiz{GradeMethod: models.GradeMethodAverage, SumGrades: 10, Grade: 50}

	grade, ok := CalculateQuizGrade(quiz, gradedAttempts(4, 8))
	require.True(t, ok)
	require.InDelta(t, 30, grade, 1e-9)
}

func TestCalculateQuizGradeSkipsUnfinished(t *testing.T) {
	quiz := models.Quiz{GradeMethod: models.GradeMethodHighest, SumGrades: 10, Grade: 100}

	attempts := []models.Attempt{
		{State: models.AttemptInProgress, SumGrades: float64Ptr(9)},
		{State: models.AttemptFinished, SumGrades: float64Ptr(5)},
		{State: models.AttemptFinished},
	}

	grade, ok := CalculateQuizGrade(quiz, attempts)
	require.True(t, ok)
	require.InDelta(t, 50, grade, 1e-9)
}

func TestCalculateQuizGradeNoGradedAttempts(t *testing.T) {
	quiz := models.Quiz{SumGrades: 10, Grade: 100}

	_, ok := CalculateQuizGrade(quiz, []models.Attempt{{State: models.AttemptInProgress}})
	require.False(t, ok)

	_, ok = CalculateQuizGrade(models.Quiz{Grade: 100}, gradedAttempts(5))
	require.False(t, ok, "quiz without gradeable questions yields no grade")
}
