package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/models"
)

// UsageRepository persists the grading engine's question usage records.
type UsageRepository interface {
	GetByID(ctx context.Context, id uint) (models.QuestionUsage, error)
	Save(ctx context.Context, usage *models.QuestionUsage) error
	Delete(ctx context.Context, id uint) error
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository instantiates the repository.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) GetByID(ctx context.Context, id uint) (models.QuestionUsage, error) {
	var usage models.QuestionUsage
	if err := dbFor(ctx, r.db).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("slot ASC") }).
		First(&usage, id).Error; err != nil {
		return models.QuestionUsage{}, err
	}

	return usage, nil
}

func (r *usageRepository) Save(ctx context.Context, usage *models.QuestionUsage) error {
	db := dbFor(ctx, r.db)

	if usage.ID == 0 {
		return db.Create(usage).Error
	}

	// The engine rebuilds instances without their row ids, so re-saving an
	// existing usage replaces its question rows wholesale instead of updating
	// in place.
	if err := db.Where("usage_id = ?", usage.ID).Delete(&models.UsageQuestion{}).Error; err != nil {
		return err
	}

	questions := usage.Questions
	usage.Questions = nil
	err := db.Save(usage).Error
	usage.Questions = questions
	if err != nil {
		return err
	}

	for i := range questions {
		questions[i].ID = 0
		questions[i].UsageID = usage.ID
	}
	if len(questions) == 0 {
		return nil
	}

	return db.Create(&questions).Error
}

func (r *usageRepository) Delete(ctx context.Context, id uint) error {
	db := dbFor(ctx, r.db)

	if err := db.Where("usage_id = ?", id).Delete(&models.UsageQuestion{}).Error; err != nil {
		return err
	}

	return db.Delete(&models.QuestionUsage{}, id).Error
}
