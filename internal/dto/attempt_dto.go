package dto

import "github.com/openlms/quiz-api/internal/models"

// StartAttemptRequest is the payload for starting a new attempt.
type StartAttemptRequest struct {
	QuizID  uint `json:"quiz_id" validate:"required"`
	Preview bool `json:"preview"`
}

// RefreshDeadlinesRequest narrows which open attempts a deadline refresh
// touches. All fields are optional; an empty body refreshes everything.
type RefreshDeadlinesRequest struct {
	CourseID *uint `json:"course_id"`
	QuizID   *uint `json:"quiz_id"`
	UserID   *uint `json:"user_id"`
	GroupID  *uint `json:"group_id"`
}

// AttemptResponse is the API representation of an attempt.
type AttemptResponse struct {
	ID             uint     `json:"id"`
	QuizID         uint     `json:"quiz_id"`
	UserID         uint     `json:"user_id"`
	Attempt        int      `json:"attempt"`
	State          string   `json:"state"`
	Preview        bool     `json:"preview"`
	Layout         []int    `json:"layout"`
	CurrentPage    int      `json:"current_page"`
	TimeStart      int64    `json:"time_start"`
	TimeFinish     int64    `json:"time_finish,omitempty"`
	TimeCheckState *int64   `json:"time_check_state,omitempty"`
	SumGrades      *float64 `json:"sum_grades,omitempty"`
}

// NewAttemptResponse maps an attempt model to its API shape, decoding the
// stored layout string into slot numbers.
func NewAttemptResponse(attempt models.Attempt) AttemptResponse {
	return AttemptResponse{
		ID:             attempt.ID,
		QuizID:         attempt.QuizID,
		UserID:         attempt.UserID,
		Attempt:        attempt.Attempt,
		State:          attempt.State,
		Preview:        attempt.Preview,
		Layout:         attempt.LayoutSlots(),
		CurrentPage:    attempt.CurrentPage,
		TimeStart:      attempt.TimeStart,
		TimeFinish:     attempt.TimeFinish,
		TimeCheckState: attempt.TimeCheckState,
		SumGrades:      attempt.SumGrades,
	}
}

// NewAttemptResponses maps a slice of attempts.
func NewAttemptResponses(attempts []models.Attempt) []AttemptResponse {
	responses := make([]AttemptResponse, len(attempts))
	for i, attempt := range attempts {
		responses[i] = NewAttemptResponse(attempt)
	}
	return responses
}
