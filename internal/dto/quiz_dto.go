package dto

import (
	"github.com/openlms/quiz-api/internal/models"
)

// QuizImportRequest is the JSON payload for creating a quiz together with its
// slot and section structure.
type QuizImportRequest struct {
	CourseID         uint    `json:"course_id" validate:"required"`
	Name             string  `json:"name" validate:"required,max=255"`
	Intro            string  `json:"intro"`
	GradeMethod      string  `json:"grade_method" validate:"omitempty,oneof=highest average first last"`
	TimeLimit        int64   `json:"time_limit" validate:"gte=0"`
	TimeClose        int64   `json:"time_close" validate:"gte=0"`
	GracePeriod      int64   `json:"grace_period" validate:"gte=0"`
	OverdueHandling  string  `json:"overdue_handling" validate:"omitempty,oneof=autosubmit graceperiod autoabandon"`
	AttemptOnLast    bool    `json:"attempt_on_last"`
	QuestionsPerPage int     `json:"questions_per_page" validate:"gte=0"`
	ShuffleAnswers   bool    `json:"shuffle_answers"`
	Grade            float64 `json:"grade" validate:"gte=0"`

	ReviewAttempt         int `json:"review_attempt"`
	ReviewCorrectness     int `json:"review_correctness"`
	ReviewMarks           int `json:"review_marks"`
	ReviewFeedback        int `json:"review_feedback"`
	ReviewGeneralFeedback int `json:"review_general_feedback"`
	ReviewRightAnswer     int `json:"review_right_answer"`
	ReviewOverallFeedback int `json:"review_overall_feedback"`
	ReviewManualComment   int `json:"review_manual_comment"`

	Slots    []QuizSlotPayload    `json:"slots" validate:"required,min=1,dive"`
	Sections []QuizSectionPayload `json:"sections" validate:"dive"`
}

// QuizSlotPayload describes one slot in an import payload. A slot carries
// either a concrete bank entry reference or a random-selection filter.
type QuizSlotPayload struct {
	Slot                int                `json:"slot" validate:"required,gte=1"`
	Page                int                `json:"page" validate:"required,gte=1"`
	QuestionBankEntryID *uint              `json:"question_bank_entry_id"`
	MaxMark             float64            `json:"max_mark" validate:"gte=0"`
	Filter              *models.SlotFilter `json:"filter"`
}

// QuizSectionPayload describes one section in an import payload.
type QuizSectionPayload struct {
	FirstSlot        int    `json:"first_slot" validate:"required,gte=1"`
	Heading          string `json:"heading" validate:"max=255"`
	ShuffleQuestions bool   `json:"shuffle_questions"`
}

// QuizResponse is the API representation of a quiz.
type QuizResponse struct {
	ID               uint    `json:"id"`
	CourseID         uint    `json:"course_id"`
	Name             string  `json:"name"`
	Intro            string  `json:"intro"`
	GradeMethod      string  `json:"grade_method"`
	TimeLimit        int64   `json:"time_limit"`
	TimeClose        int64   `json:"time_close"`
	GracePeriod      int64   `json:"grace_period"`
	OverdueHandling  string  `json:"overdue_handling"`
	AttemptOnLast    bool    `json:"attempt_on_last"`
	QuestionsPerPage int     `json:"questions_per_page"`
	ShuffleAnswers   bool    `json:"shuffle_answers"`
	SumGrades        float64 `json:"sum_grades"`
	Grade            float64 `json:"grade"`
	SlotCount        int     `json:"slot_count"`
}

// NewQuizResponse maps a quiz model to its API shape.
func NewQuizResponse(quiz models.Quiz, slotCount int) QuizResponse {
	return QuizResponse{
		ID:               quiz.ID,
		CourseID:         quiz.CourseID,
		Name:             quiz.Name,
		Intro:            quiz.Intro,
		GradeMethod:      quiz.GradeMethod,
		TimeLimit:        quiz.TimeLimit,
		TimeClose:        quiz.TimeClose,
		GracePeriod:      quiz.GracePeriod,
		OverdueHandling:  quiz.OverdueHandling,
		AttemptOnLast:    quiz.AttemptOnLast,
		QuestionsPerPage: quiz.QuestionsPerPage,
		ShuffleAnswers:   quiz.ShuffleAnswers,
		SumGrades:        quiz.SumGrades,
		Grade:            quiz.Grade,
		SlotCount:        slotCount,
	}
}
