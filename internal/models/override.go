package models

import "time"

// QuizOverride replaces the quiz's timing defaults for one user or one group.
// Exactly one of UserID and GroupID is set. Nil timing fields leave the
// corresponding setting untouched; a zero value means "no limit".
type QuizOverride struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	QuizID    uint   `gorm:"not null;index" json:"quiz_id"`
	UserID    *uint  `gorm:"index" json:"user_id"`
	GroupID   *uint  `gorm:"index" json:"group_id"`
	TimeClose *int64 `json:"time_close"`
	TimeLimit *int64 `json:"time_limit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (QuizOverride) TableName() string { return "quiz_overrides" }

// GroupMember records a user's membership in a course group; group overrides
// apply to every member.
type GroupMember struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	GroupID uint `gorm:"not null;uniqueIndex:idx_group_member" json:"group_id"`
	UserID  uint `gorm:"not null;uniqueIndex:idx_group_member" json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (GroupMember) TableName() string { return "group_members" }
