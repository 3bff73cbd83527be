package models

import (
	"strconv"
	"strings"
	"time"
)

// Attempt states. Transitions are monotonic: an attempt never returns to
// AttemptNotStarted once it has left it, and Finished/Abandoned are terminal.
const (
	AttemptNotStarted = "notstarted"
	AttemptInProgress = "inprogress"
	AttemptOverdue    = "overdue"
	AttemptSubmitted  = "submitted"
	AttemptFinished   = "finished"
	AttemptAbandoned  = "abandoned"
)

// Attempt represents one user's sitting of a quiz.
//
// Layout is the ordered sequence of slot numbers the user sees, serialised as
// a comma-separated list in which 0 marks a page break. Every section ends
// with a 0 sentinel.
type Attempt struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	QuizID       uint     `gorm:"not null;index:idx_attempt_quiz_user" json:"quiz_id"`
	UserID       uint     `gorm:"not null;index:idx_attempt_quiz_user" json:"user_id"`
	Attempt      int      `gorm:"not null" json:"attempt"`
	UniqueID     uint     `gorm:"not null;uniqueIndex" json:"unique_id"`
	State        string   `gorm:"size:16;not null;default:inprogress;index" json:"state"`
	Preview      bool     `gorm:"not null;default:false" json:"preview"`
	Layout       string   `gorm:"type:text;not null" json:"layout"`
	CurrentPage  int      `gorm:"not null;default:0" json:"current_page"`
	TimeStart    int64    `gorm:"not null;default:0" json:"time_start"`
	TimeFinish   int64    `gorm:"not null;default:0" json:"time_finish"`
	TimeModified int64    `gorm:"not null;default:0" json:"time_modified"`
	// TimeCheckState is the next moment a background sweep has to look at this
	// attempt, nil when no deadline applies or the attempt is a preview.
	TimeCheckState *int64   `gorm:"index" json:"time_check_state"`
	SumGrades      *float64 `json:"sum_grades"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the table name independent of gorm pluralisation.
func (Attempt) TableName() string { return "quiz_attempts" }

// IsFinished reports whether the attempt reached a terminal, gradeable state.
func (a Attempt) IsFinished() bool { return a.State == AttemptFinished }

// InProgress reports whether the attempt is still being sat, including the
// overdue grace window.
func (a Attempt) InProgress() bool {
	return a.State == AttemptInProgress || a.State == AttemptOverdue
}

// LayoutSlots decodes the layout string into its numeric entries, page-break
// zeros included.
func (a Attempt) LayoutSlots() []int {
	return DecodeLayout(a.Layout)
}

// DecodeLayout parses a comma-separated layout string. Malformed entries are
// skipped rather than failing the whole layout.
func DecodeLayout(layout string) []int {
	if layout == "" {
		return nil
	}

	parts := strings.Split(layout, ",")
	slots := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		slots = append(slots, value)
	}

	return slots
}

// EncodeLayout renders layout entries back to the stored string form.
func EncodeLayout(slots []int) string {
	if len(slots) == 0 {
		return ""
	}

	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = strconv.Itoa(slot)
	}

	return strings.Join(parts, ",")
}
