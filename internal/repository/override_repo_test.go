package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

func TestListForUserResolvesGroupMembership(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewOverrideRepository(db)

	require.NoError(t, db.Create(&models.GroupMember{GroupID: 7, UserID: 3}).Error)

	own := models.QuizOverride{QuizID: 1, UserID: uintPtr(3), TimeLimit: int64Ptr(2000)}
	require.NoError(t, repo.Create(context.Background(), &own))
	group := models.QuizOverride{QuizID: 1, GroupID: uintPtr(7), TimeClose: int64Ptr(9000)}
	require.NoError(t, repo.Create(context.Background(), &group))
	otherUser := models.QuizOverride{QuizID: 1, UserID: uintPtr(4), TimeLimit: int64Ptr(500)}
	require.NoError(t, repo.Create(context.Background(), &otherUser))
	otherGroup := models.QuizOverride{QuizID: 1, GroupID: uintPtr(8), TimeLimit: int64Ptr(500)}
	require.NoError(t, repo.Create(context.Background(), &otherGroup))
	otherQuiz := models.QuizOverride{QuizID: 2, UserID: uintPtr(3), TimeLimit: int64Ptr(500)}
	require.NoError(t, repo.Create(context.Background(), &otherQuiz))

	overrides, err := repo.ListForUser(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, overrides, 2)
	require.Equal(t, own.ID, overrides[0].ID)
	require.Equal(t, group.ID, overrides[1].ID)
}

func TestOverrideUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewOverrideRepository(db)

	override := models.QuizOverride{QuizID: 1, UserID: uintPtr(3), TimeLimit: int64Ptr(2000)}
	require.NoError(t, repo.Create(context.Background(), &override))

	override.TimeLimit = int64Ptr(3000)
	require.NoError(t, repo.Update(context.Background(), &override))

	got, err := repo.GetByID(context.Background(), override.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3000), *got.TimeLimit)

	require.NoError(t, repo.Delete(context.Background(), override.ID))
	_, err = repo.GetByID(context.Background(), override.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGroupIDsForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewOverrideRepository(db)

	require.NoError(t, db.Create(&models.GroupMember{GroupID: 7, UserID: 3}).Error)
	require.NoError(t, db.Create(&models.GroupMember{GroupID: 8, UserID: 3}).Error)
	require.NoError(t, db.Create(&models.GroupMember{GroupID: 9, UserID: 4}).Error)

	groups, err := repo.GroupIDsForUser(context.Background(), 3)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{7, 8}, groups)
}

func TestGradeUpsertReplacesExisting(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewGradeRepository(db)

	require.NoError(t, repo.Upsert(context.Background(), &models.QuizGrade{QuizID: 1, UserID: 3, Grade: 4}))
	require.NoError(t, repo.Upsert(context.Background(), &models.QuizGrade{QuizID: 1, UserID: 3, Grade: 8}))

	grade, err := repo.Get(context.Background(), 1, 3)
	require.NoError(t, err)
	require.InDelta(t, 8, grade.Grade, 1e-9)

	require.NoError(t, repo.Delete(context.Background(), 1, 3))
	_, err = repo.Get(context.Background(), 1, 3)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTransactorRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	tx := repository.NewTransactor(db)
	repo := repository.NewOverrideRepository(db)

	err := tx.InTransaction(context.Background(), func(ctx context.Context) error {
		if err := repo.Create(ctx, &models.QuizOverride{QuizID: 1, UserID: uintPtr(3)}); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	overrides, err := repo.ListForQuiz(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, overrides)
}
