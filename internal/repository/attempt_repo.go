package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/models"
)

// AttemptFilter narrows attempt queries.
type AttemptFilter struct {
	QuizID  *uint
	UserID  *uint
	States  []string
	Preview *bool
}

// DeadlineFilter scopes the bulk deadline refresh. Nil fields leave the
// corresponding dimension unconstrained.
type DeadlineFilter struct {
	CourseID *uint
	QuizID   *uint
	UserID   *uint
	GroupID  *uint
}

// AttemptRepository defines data operations for quiz attempts.
type AttemptRepository interface {
	GetByID(ctx context.Context, id uint) (models.Attempt, error)
	GetLast(ctx context.Context, quizID, userID uint) (models.Attempt, error)
	List(ctx context.Context, filter AttemptFilter) ([]models.Attempt, error)
	Create(ctx context.Context, attempt *models.Attempt) error
	Update(ctx context.Context, attempt *models.Attempt) error
	Delete(ctx context.Context, id uint) error
	ListDue(ctx context.Context, now int64, limit int) ([]models.Attempt, error)
	UpdateDeadlines(ctx context.Context, filter DeadlineFilter) (int64, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates the repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.Attempt, error) {
	var attempt models.Attempt
	if err := dbFor(ctx, r.db).First(&attempt, id).Error; err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) GetLast(ctx context.Context, quizID, userID uint) (models.Attempt, error) {
	var attempt models.Attempt
	if err := dbFor(ctx, r.db).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Where("preview = ?", false).
		Order("attempt DESC").
		First(&attempt).Error; err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) List(ctx context.Context, filter AttemptFilter) ([]models.Attempt, error) {
	query := dbFor(ctx, r.db).Model(&models.Attempt{})

	if filter.QuizID != nil {
		query = query.Where("quiz_id = ?", *filter.QuizID)
	}

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if len(filter.States) > 0 {
		query = query.Where("state IN ?", filter.States)
	}

	if filter.Preview != nil {
		query = query.Where("preview = ?", *filter.Preview)
	}

	var attempts []models.Attempt
	if err := query.Order("attempt ASC").Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	return dbFor(ctx, r.db).Create(attempt).Error
}

func (r *attemptRepository) Update(ctx context.Context, attempt *models.Attempt) error {
	return dbFor(ctx, r.db).Save(attempt).Error
}

func (r *attemptRepository) Delete(ctx context.Context, id uint) error {
	return dbFor(ctx, r.db).Delete(&models.Attempt{}, id).Error
}

func (r *attemptRepository) ListDue(ctx context.Context, now int64, limit int) ([]models.Attempt, error) {
	query := dbFor(ctx, r.db).
		Where("state IN ?", []string{models.AttemptInProgress, models.AttemptOverdue}).
		Where("time_check_state IS NOT NULL").
		Where("time_check_state <= ?", now).
		Order("time_check_state ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	var attempts []models.Attempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}

// overrideScope restricts override rows to those applying to the attempt's
// user: either a user override, or a group override for a group the user
// belongs to.
const overrideScope = `o.quiz_id = quiz_attempts.quiz_id
  AND (o.user_id = quiz_attempts.user_id
       OR o.group_id IN (SELECT gm.group_id FROM group_members gm WHERE gm.user_id = quiz_attempts.user_id))`

// effectiveExpr renders the "most lenient wins" rule for one timing column as
// SQL: a zero anywhere (quiz default or any applicable override) means no
// limit and beats every finite value; otherwise the latest value wins.
func effectiveExpr(column string) string {
	overrideMax := fmt.Sprintf(
		`(SELECT MAX(o.%[1]s) FROM quiz_overrides o WHERE %[2]s AND o.%[1]s IS NOT NULL)`,
		column, overrideScope)
	overrideZero := fmt.Sprintf(
		`EXISTS (SELECT 1 FROM quiz_overrides o WHERE %[2]s AND o.%[1]s = 0)`,
		column, overrideScope)

	return fmt.Sprintf(`(CASE
  WHEN q.%[1]s = 0 THEN 0
  WHEN %[2]s THEN 0
  WHEN %[3]s > q.%[1]s THEN %[3]s
  ELSE q.%[1]s
END)`, column, overrideZero, overrideMax)
}

// deadlineExpr combines the effective time limit and close time into the next
// check time for one attempt row, mirroring service.TimeCheckState.
func deadlineExpr() string {
	effClose := effectiveExpr("time_close")
	effLimit := effectiveExpr("time_limit")

	return fmt.Sprintf(`(SELECT (CASE
  WHEN %[1]s = 0 AND %[2]s = 0 THEN NULL
  WHEN %[2]s = 0 THEN %[1]s
  WHEN %[1]s = 0 THEN quiz_attempts.time_start + %[2]s
  WHEN quiz_attempts.time_start + %[2]s < %[1]s THEN quiz_attempts.time_start + %[2]s
  ELSE %[1]s
END) + (CASE WHEN quiz_attempts.state = '%[3]s' THEN q.grace_period ELSE 0 END)
FROM quizzes q WHERE q.id = quiz_attempts.quiz_id)`,
		effClose, effLimit, models.AttemptOverdue)
}

// UpdateDeadlines recomputes time_check_state for every open attempt matching
// the filter in one set-based statement. The per-row computation is the SQL
// rendering of the timing resolver, so bulk refresh and single-attempt saves
// always agree.
func (r *attemptRepository) UpdateDeadlines(ctx context.Context, filter DeadlineFilter) (int64, error) {
	sql := "UPDATE quiz_attempts SET time_check_state = " + deadlineExpr() +
		" WHERE quiz_attempts.state IN (?, ?) AND quiz_attempts.preview = ?"
	args := []interface{}{models.AttemptInProgress, models.AttemptOverdue, false}

	if filter.QuizID != nil {
		sql += " AND quiz_attempts.quiz_id = ?"
		args = append(args, *filter.QuizID)
	}

	if filter.CourseID != nil {
		sql += " AND quiz_attempts.quiz_id IN (SELECT id FROM quizzes WHERE course_id = ?)"
		args = append(args, *filter.CourseID)
	}

	if filter.UserID != nil {
		sql += " AND quiz_attempts.user_id = ?"
		args = append(args, *filter.UserID)
	}

	if filter.GroupID != nil {
		sql += " AND quiz_attempts.user_id IN (SELECT user_id FROM group_members WHERE group_id = ?)"
		args = append(args, *filter.GroupID)
	}

	result := dbFor(ctx, r.db).Exec(sql, args...)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
