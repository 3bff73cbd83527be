package dto

import "github.com/openlms/quiz-api/internal/models"

// OverrideRequest is the payload for creating or updating a timing override.
// Exactly one of user_id and group_id must be set.
type OverrideRequest struct {
	UserID    *uint  `json:"user_id" validate:"required_without=GroupID,excluded_with=GroupID"`
	GroupID   *uint  `json:"group_id" validate:"required_without=UserID,excluded_with=UserID"`
	TimeClose *int64 `json:"time_close" validate:"omitempty,gte=0"`
	TimeLimit *int64 `json:"time_limit" validate:"omitempty,gte=0"`
}

// OverrideResponse is the API representation of a timing override.
type OverrideResponse struct {
	ID        uint   `json:"id"`
	QuizID    uint   `json:"quiz_id"`
	UserID    *uint  `json:"user_id,omitempty"`
	GroupID   *uint  `json:"group_id,omitempty"`
	TimeClose *int64 `json:"time_close,omitempty"`
	TimeLimit *int64 `json:"time_limit,omitempty"`
}

// NewOverrideResponse maps an override model to its API shape.
func NewOverrideResponse(override models.QuizOverride) OverrideResponse {
	return OverrideResponse{
		ID:        override.ID,
		QuizID:    override.QuizID,
		UserID:    override.UserID,
		GroupID:   override.GroupID,
		TimeClose: override.TimeClose,
		TimeLimit: override.TimeLimit,
	}
}
