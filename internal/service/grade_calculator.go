package service

import (
	"github.com/openlms/quiz-api/internal/models"
)

// CalculateQuizGrade derives the user's final quiz grade from their finished
// attempts according to the quiz's grading method. The boolean result is
// false when no finished attempt carries a grade.
func CalculateQuizGrade(quiz models.Quiz, attempts []models.Attempt) (float64, bool) {
	if quiz.SumGrades <= 0 {
		return 0, false
	}

	var graded []float64
	for _, attempt := range attempts {
		if !attempt.IsFinished() || attempt.SumGrades == nil {
			continue
		}
		graded = append(graded, *attempt.SumGrades)
	}

	if len(graded) == 0 {
		return 0, false
	}

	var raw float64
	switch quiz.GradeMethod {
	case models.GradeMethodFirst:
		raw = graded[0]
	case models.GradeMethodLast:
		raw = graded[len(graded)-1]
	case models.GradeMethodAverage:
		var sum float64
		for _, g := range graded {
			sum += g
		}
		raw = sum / float64(len(graded))
	default: // highest
		raw = graded[0]
		for _, g := range graded[1:] {
			if g > raw {
				raw = g
			}
		}
	}

	// Scale from the sum of question marks to the quiz's target grade.
	return raw * quiz.Grade / quiz.SumGrades, true
}
