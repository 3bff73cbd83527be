package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/models"
)

// OverrideRepository defines data operations for timing overrides and the
// group membership they resolve through.
type OverrideRepository interface {
	GetByID(ctx context.Context, id uint) (models.QuizOverride, error)
	ListForQuiz(ctx context.Context, quizID uint) ([]models.QuizOverride, error)
	// ListForUser returns every override applying to the user on the quiz:
	// the user's own override plus overrides of groups the user belongs to.
	ListForUser(ctx context.Context, quizID, userID uint) ([]models.QuizOverride, error)
	Create(ctx context.Context, override *models.QuizOverride) error
	Update(ctx context.Context, override *models.QuizOverride) error
	Delete(ctx context.Context, id uint) error
	GroupIDsForUser(ctx context.Context, userID uint) ([]uint, error)
}

type overrideRepository struct {
	db *gorm.DB
}

// NewOverrideRepository instantiates the repository.
func NewOverrideRepository(db *gorm.DB) OverrideRepository {
	return &overrideRepository{db: db}
}

func (r *overrideRepository) GetByID(ctx context.Context, id uint) (models.QuizOverride, error) {
	var override models.QuizOverride
	if err := dbFor(ctx, r.db).First(&override, id).Error; err != nil {
		return models.QuizOverride{}, err
	}

	return override, nil
}

func (r *overrideRepository) ListForQuiz(ctx context.Context, quizID uint) ([]models.QuizOverride, error) {
	var overrides []models.QuizOverride
	if err := dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Order("id ASC").
		Find(&overrides).Error; err != nil {
		return nil, err
	}

	return overrides, nil
}

func (r *overrideRepository) ListForUser(ctx context.Context, quizID, userID uint) ([]models.QuizOverride, error) {
	var overrides []models.QuizOverride
	if err := dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Where("user_id = ? OR group_id IN (?)",
			userID,
			dbFor(ctx, r.db).Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID),
		).
		Order("id ASC").
		Find(&overrides).Error; err != nil {
		return nil, err
	}

	return overrides, nil
}

func (r *overrideRepository) Create(ctx context.Context, override *models.QuizOverride) error {
	return dbFor(ctx, r.db).Create(override).Error
}

func (r *overrideRepository) Update(ctx context.Context, override *models.QuizOverride) error {
	return dbFor(ctx, r.db).Save(override).Error
}

func (r *overrideRepository) Delete(ctx context.Context, id uint) error {
	return dbFor(ctx, r.db).Delete(&models.QuizOverride{}, id).Error
}

func (r *overrideRepository) GroupIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var groupIDs []uint
	if err := dbFor(ctx, r.db).
		Model(&models.GroupMember{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, err
	}

	return groupIDs, nil
}
