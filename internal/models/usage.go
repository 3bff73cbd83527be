package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionUsage is the grading engine's record of questions-in-progress for
// one attempt. An attempt owns exactly one usage, referenced by UniqueID.
type QuestionUsage struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	QuizID  uint `gorm:"not null;index" json:"quiz_id"`
	Preview bool `gorm:"not null;default:false" json:"preview"`

	Questions []UsageQuestion `gorm:"foreignKey:UsageID;constraint:OnDelete:CASCADE" json:"questions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (QuestionUsage) TableName() string { return "question_usages" }

// UsageQuestion is one question registered in a usage, together with its
// running interaction state.
type UsageQuestion struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UsageID    uint           `gorm:"not null;index" json:"usage_id"`
	Slot       int            `gorm:"not null" json:"slot"`
	QuestionID uint           `gorm:"not null;index" json:"question_id"`
	Variant    int            `gorm:"not null;default:1" json:"variant"`
	MaxMark    float64        `gorm:"not null;default:1" json:"max_mark"`
	State      datatypes.JSON `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (UsageQuestion) TableName() string { return "usage_questions" }
