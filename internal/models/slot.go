package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// QuizSlot is one question position within a quiz. A slot either references a
// concrete question bank entry, or carries a filter condition from which a
// random question is drawn at attempt-start time.
type QuizSlot struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	QuizID              uint           `gorm:"not null;index" json:"quiz_id"`
	Slot                int            `gorm:"not null" json:"slot"`
	Page                int            `gorm:"not null;default:1" json:"page"`
	QuestionBankEntryID *uint          `json:"question_bank_entry_id"`
	MaxMark             float64        `gorm:"not null;default:1" json:"max_mark"`
	FilterCondition     datatypes.JSON `json:"filter_condition"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (QuizSlot) TableName() string { return "quiz_slots" }

// IsRandom reports whether the slot resolves to a random question at
// attempt-start time.
func (s QuizSlot) IsRandom() bool {
	return s.QuestionBankEntryID == nil && len(s.FilterCondition) > 0
}

// Filter decodes the slot's random-selection filter condition.
func (s QuizSlot) Filter() (SlotFilter, error) {
	var filter SlotFilter
	if len(s.FilterCondition) == 0 {
		return filter, nil
	}
	err := json.Unmarshal(s.FilterCondition, &filter)
	return filter, err
}

// SlotFilter narrows which question bank entries a random slot may draw from.
type SlotFilter struct {
	CategoryID           uint `json:"category_id"`
	IncludeSubcategories bool `json:"include_subcategories"`
}

// Matches reports whether a question satisfies the filter condition.
func (f SlotFilter) Matches(q Question) bool {
	if f.CategoryID == 0 {
		return true
	}
	if q.CategoryID == f.CategoryID {
		return true
	}
	return f.IncludeSubcategories && q.ParentCategoryID != nil && *q.ParentCategoryID == f.CategoryID
}

// QuizSection is a named contiguous range of slots sharing shuffle behaviour.
// Sections are ordered by FirstSlot and fully partition the quiz's slots; a
// section runs up to the slot before the next section's FirstSlot.
type QuizSection struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	QuizID           uint   `gorm:"not null;index" json:"quiz_id"`
	FirstSlot        int    `gorm:"not null" json:"first_slot"`
	Heading          string `gorm:"size:255" json:"heading"`
	ShuffleQuestions bool   `gorm:"not null;default:false" json:"shuffle_questions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (QuizSection) TableName() string { return "quiz_sections" }
