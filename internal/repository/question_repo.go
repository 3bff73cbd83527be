package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/models"
)

// QuestionRepository defines data operations against the question bank and
// the usage history the random selector needs.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	// LatestByBankEntry returns the newest version of a bank entry regardless
	// of status, for draft detection.
	LatestByBankEntry(ctx context.Context, bankEntryID uint) (models.Question, error)
	// LatestReadyByBankEntry returns the newest non-draft version of a bank
	// entry, gorm.ErrRecordNotFound when only drafts exist.
	LatestReadyByBankEntry(ctx context.Context, bankEntryID uint) (models.Question, error)
	// ListReadyByFilter returns the latest ready version of every bank entry
	// matching a random slot's filter condition.
	ListReadyByFilter(ctx context.Context, filter models.SlotFilter) ([]models.Question, error)
	// UsedBankEntryIDs returns the bank entries already served to the user in
	// previous attempts at the quiz, so random selection avoids repeats.
	UsedBankEntryIDs(ctx context.Context, quizID, userID uint) ([]uint, error)
	// VariantCounts returns how often each variant of a question has been
	// started, for the least-used variant strategy.
	VariantCounts(ctx context.Context, questionID uint) (map[int]int, error)
	Create(ctx context.Context, question *models.Question) error
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := dbFor(ctx, r.db).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) LatestReadyByBankEntry(ctx context.Context, bankEntryID uint) (models.Question, error) {
	var question models.Question
	if err := dbFor(ctx, r.db).
		Where("bank_entry_id = ?", bankEntryID).
		Where("status = ?", models.QuestionStatusReady).
		Order("version DESC").
		First(&question).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) LatestByBankEntry(ctx context.Context, bankEntryID uint) (models.Question, error) {
	var question models.Question
	if err := dbFor(ctx, r.db).
		Where("bank_entry_id = ?", bankEntryID).
		Order("version DESC").
		First(&question).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) ListReadyByFilter(ctx context.Context, filter models.SlotFilter) ([]models.Question, error) {
	// Latest ready version per bank entry only: anything older has been
	// superseded and must not be drawn.
	latest := dbFor(ctx, r.db).
		Model(&models.Question{}).
		Select("bank_entry_id, MAX(version) AS version").
		Where("status = ?", models.QuestionStatusReady).
		Group("bank_entry_id")

	query := dbFor(ctx, r.db).
		Joins("JOIN (?) latest ON latest.bank_entry_id = questions.bank_entry_id AND latest.version = questions.version", latest).
		Where("questions.status = ?", models.QuestionStatusReady)

	if filter.CategoryID != 0 {
		if filter.IncludeSubcategories {
			query = query.Where("questions.category_id = ? OR questions.parent_category_id = ?", filter.CategoryID, filter.CategoryID)
		} else {
			query = query.Where("questions.category_id = ?", filter.CategoryID)
		}
	}

	var questions []models.Question
	if err := query.Order("questions.id ASC").Find(&questions).Error; err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *questionRepository) UsedBankEntryIDs(ctx context.Context, quizID, userID uint) ([]uint, error) {
	var entryIDs []uint
	if err := dbFor(ctx, r.db).
		Model(&models.UsageQuestion{}).
		Distinct("questions.bank_entry_id").
		Joins("JOIN questions ON questions.id = usage_questions.question_id").
		Joins("JOIN quiz_attempts ON quiz_attempts.unique_id = usage_questions.usage_id").
		Where("quiz_attempts.quiz_id = ?", quizID).
		Where("quiz_attempts.user_id = ?", userID).
		Pluck("questions.bank_entry_id", &entryIDs).Error; err != nil {
		return nil, err
	}

	return entryIDs, nil
}

func (r *questionRepository) VariantCounts(ctx context.Context, questionID uint) (map[int]int, error) {
	type variantCount struct {
		Variant int
		Total   int
	}

	var rows []variantCount
	if err := dbFor(ctx, r.db).
		Model(&models.UsageQuestion{}).
		Select("variant, COUNT(*) AS total").
		Where("question_id = ?", questionID).
		Group("variant").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Variant] = row.Total
	}

	return counts, nil
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return dbFor(ctx, r.db).Create(question).Error
}
