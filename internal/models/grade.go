package models

import "time"

// QuizGrade is the stored final grade for one user on one quiz, recomputed
// whenever the user's set of attempts changes.
type QuizGrade struct {
	ID     uint    `gorm:"primaryKey" json:"id"`
	QuizID uint    `gorm:"not null;uniqueIndex:idx_quiz_grade" json:"quiz_id"`
	UserID uint    `gorm:"not null;uniqueIndex:idx_quiz_grade" json:"user_id"`
	Grade  float64 `gorm:"not null;default:0" json:"grade"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (QuizGrade) TableName() string { return "quiz_grades" }
