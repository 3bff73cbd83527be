package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlms/quiz-api/internal/models"
)

// GradeRepository defines data operations for stored quiz grades.
type GradeRepository interface {
	Get(ctx context.Context, quizID, userID uint) (models.QuizGrade, error)
	Upsert(ctx context.Context, grade *models.QuizGrade) error
	Delete(ctx context.Context, quizID, userID uint) error
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository instantiates the repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

func (r *gradeRepository) Get(ctx context.Context, quizID, userID uint) (models.QuizGrade, error) {
	var grade models.QuizGrade
	if err := dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		First(&grade).Error; err != nil {
		return models.QuizGrade{}, err
	}

	return grade, nil
}

func (r *gradeRepository) Upsert(ctx context.Context, grade *models.QuizGrade) error {
	return dbFor(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "quiz_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"grade", "updated_at"}),
		}).
		Create(grade).Error
}

func (r *gradeRepository) Delete(ctx context.Context, quizID, userID uint) error {
	return dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Delete(&models.QuizGrade{}).Error
}
