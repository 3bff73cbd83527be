package models

import "time"

// Grading methods decide how the final quiz grade is derived from attempt grades.
const (
	GradeMethodHighest = "highest"
	GradeMethodAverage = "average"
	GradeMethodFirst   = "first"
	GradeMethodLast    = "last"
)

// Overdue handling modes control what happens to an attempt whose deadline passes.
const (
	OverdueAutoSubmit  = "autosubmit"
	OverdueGracePeriod = "graceperiod"
	OverdueAutoAbandon = "autoabandon"
)

// Review phase bits. Each review setting column stores a bitmask with one bit
// per phase, so a single column answers "is this visible in phase X".
const (
	ReviewDuring           = 0x10000
	ReviewImmediatelyAfter = 0x01000
	ReviewLaterWhileOpen   = 0x00100
	ReviewAfterClose       = 0x00010
)

// Quiz is the configuration entity for one quiz activity. It is immutable for
// the lifetime of any open attempt except through administrative edits.
type Quiz struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	CourseID         uint    `gorm:"not null;index" json:"course_id"`
	Name             string  `gorm:"size:255;not null" json:"name"`
	Intro            string  `gorm:"type:text" json:"intro"`
	GradeMethod      string  `gorm:"size:16;not null;default:highest" json:"grade_method"`
	TimeLimit        int64   `gorm:"not null;default:0" json:"time_limit"`
	TimeClose        int64   `gorm:"not null;default:0" json:"time_close"`
	GracePeriod      int64   `gorm:"not null;default:0" json:"grace_period"`
	OverdueHandling  string  `gorm:"size:16;not null;default:autosubmit" json:"overdue_handling"`
	AttemptOnLast    bool    `gorm:"not null;default:false" json:"attempt_on_last"`
	QuestionsPerPage int     `gorm:"not null;default:1" json:"questions_per_page"`
	ShuffleAnswers   bool    `gorm:"not null;default:true" json:"shuffle_answers"`
	SumGrades        float64 `gorm:"not null;default:0" json:"sum_grades"`
	Grade            float64 `gorm:"not null;default:0" json:"grade"`

	ReviewAttempt         int `gorm:"not null;default:0" json:"review_attempt"`
	ReviewCorrectness     int `gorm:"not null;default:0" json:"review_correctness"`
	ReviewMarks           int `gorm:"not null;default:0" json:"review_marks"`
	ReviewFeedback        int `gorm:"not null;default:0" json:"review_feedback"`
	ReviewGeneralFeedback int `gorm:"not null;default:0" json:"review_general_feedback"`
	ReviewRightAnswer     int `gorm:"not null;default:0" json:"review_right_answer"`
	ReviewOverallFeedback int `gorm:"not null;default:0" json:"review_overall_feedback"`
	ReviewManualComment   int `gorm:"not null;default:0" json:"review_manual_comment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (Quiz) TableName() string { return "quizzes" }

// HasTimeLimit reports whether attempts at this quiz are time limited.
func (q Quiz) HasTimeLimit() bool { return q.TimeLimit > 0 }

// HasCloseTime reports whether the quiz has a fixed close time.
func (q Quiz) HasCloseTime() bool { return q.TimeClose > 0 }

// IsClosed reports whether the quiz close time has passed.
func (q Quiz) IsClosed(now time.Time) bool {
	return q.TimeClose > 0 && now.Unix() > q.TimeClose
}

// IsGradeable reports whether a non-zero target grade can actually be reached.
// A quiz whose questions sum to zero marks while a target grade is set cannot
// be graded and must not accept attempts.
func (q Quiz) IsGradeable() bool {
	return q.SumGrades > 0 || q.Grade == 0
}
