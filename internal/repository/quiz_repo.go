package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/models"
)

// QuizRepository defines data operations for quizzes and their structure.
type QuizRepository interface {
	GetByID(ctx context.Context, id uint) (models.Quiz, error)
	Create(ctx context.Context, quiz *models.Quiz) error
	Update(ctx context.Context, quiz *models.Quiz) error
	ListSlots(ctx context.Context, quizID uint) ([]models.QuizSlot, error)
	ListSections(ctx context.Context, quizID uint) ([]models.QuizSection, error)
	CreateSlots(ctx context.Context, slots []models.QuizSlot) error
	CreateSections(ctx context.Context, sections []models.QuizSection) error
}

type quizRepository struct {
	db *gorm.DB
}

// NewQuizRepository instantiates the repository.
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

func (r *quizRepository) GetByID(ctx context.Context, id uint) (models.Quiz, error) {
	var quiz models.Quiz
	if err := dbFor(ctx, r.db).First(&quiz, id).Error; err != nil {
		return models.Quiz{}, err
	}

	return quiz, nil
}

func (r *quizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	return dbFor(ctx, r.db).Create(quiz).Error
}

func (r *quizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	return dbFor(ctx, r.db).Save(quiz).Error
}

func (r *quizRepository) ListSlots(ctx context.Context, quizID uint) ([]models.QuizSlot, error) {
	var slots []models.QuizSlot
	if err := dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Order("slot ASC").
		Find(&slots).Error; err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *quizRepository) ListSections(ctx context.Context, quizID uint) ([]models.QuizSection, error) {
	var sections []models.QuizSection
	if err := dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Order("first_slot ASC").
		Find(&sections).Error; err != nil {
		return nil, err
	}

	return sections, nil
}

func (r *quizRepository) CreateSlots(ctx context.Context, slots []models.QuizSlot) error {
	if len(slots) == 0 {
		return nil
	}
	return dbFor(ctx, r.db).Create(&slots).Error
}

func (r *quizRepository) CreateSections(ctx context.Context, sections []models.QuizSection) error {
	if len(sections) == 0 {
		return nil
	}
	return dbFor(ctx, r.db).Create(&sections).Error
}
