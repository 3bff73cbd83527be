package models

import "time"

// Question version statuses.
const (
	QuestionStatusReady = "ready"
	QuestionStatusDraft = "draft"
)

// Question is one version of a question bank entry. Versions of the same
// logical question share a BankEntryID; attempts always resolve a bank entry
// to its latest ready version.
type Question struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	BankEntryID      uint    `gorm:"not null;index" json:"bank_entry_id"`
	Version          int     `gorm:"not null;default:1" json:"version"`
	Status           string  `gorm:"size:16;not null;default:ready" json:"status"`
	CategoryID       uint    `gorm:"not null;index" json:"category_id"`
	ParentCategoryID *uint   `json:"parent_category_id"`
	Name             string  `gorm:"size:255;not null" json:"name"`
	QuestionText     string  `gorm:"type:text" json:"question_text"`
	DefaultMark      float64 `gorm:"not null;default:1" json:"default_mark"`
	// Variants is the number of distinct renderings the question supports;
	// always at least 1.
	Variants       int  `gorm:"not null;default:1" json:"variants"`
	ShuffleAnswers bool `gorm:"-" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (Question) TableName() string { return "questions" }

// IsDraft reports whether this version must not be served to students.
func (q Question) IsDraft() bool { return q.Status == QuestionStatusDraft }
