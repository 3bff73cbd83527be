package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

func TestUsageSaveReplacesQuestionRows(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewUsageRepository(db)

	usage := models.QuestionUsage{
		QuizID: 1,
		Questions: []models.UsageQuestion{
			{Slot: 1, QuestionID: 10, Variant: 1, MaxMark: 2, State: datatypes.JSON(`{"status":"todo","mark":0}`)},
		},
	}
	require.NoError(t, repo.Save(context.Background(), &usage))

	// Rebuild the rows the way the engine does after LoadByID: same usage id,
	// fresh question rows without primary keys.
	resaved := models.QuestionUsage{
		ID:     usage.ID,
		QuizID: 1,
		Questions: []models.UsageQuestion{
			{UsageID: usage.ID, Slot: 1, QuestionID: 11, Variant: 1, MaxMark: 2, State: datatypes.JSON(`{"status":"todo","mark":0}`)},
		},
	}
	require.NoError(t, repo.Save(context.Background(), &resaved))

	var count int64
	require.NoError(t, db.Model(&models.UsageQuestion{}).Where("usage_id = ?", usage.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	got, err := repo.GetByID(context.Background(), usage.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 1)
	require.Equal(t, uint(11), got.Questions[0].QuestionID)
}
