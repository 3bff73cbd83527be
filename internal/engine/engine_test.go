package engine_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openlms/quiz-api/internal/engine"
	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

func setupEngine(t *testing.T) (engine.Engine, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Question{},
		&models.QuestionUsage{},
		&models.UsageQuestion{},
	))

	eng := engine.New(repository.NewUsageRepository(db), repository.NewQuestionRepository(db), zerolog.Nop())
	return eng, db
}

// A usage saved, reloaded, upgraded and saved again must keep exactly one
// question row per slot. Loaded instances carry no row ids, so a naive
// re-save would insert duplicates and double-count marks.
func TestSaveAfterLoadKeepsOneRowPerSlot(t *testing.T) {
	eng, db := setupEngine(t)
	ctx := context.Background()

	v1 := models.Question{ID: 1, BankEntryID: 100, Version: 1, Status: models.QuestionStatusReady, Variants: 1}
	require.NoError(t, db.Create(&v1).Error)

	usage := eng.NewUsage(5, false)
	question, err := eng.LoadQuestion(ctx, v1.ID, false)
	require.NoError(t, err)
	eng.Register(usage, question, 2)
	require.NoError(t, eng.StartAll(ctx, usage, engine.NewLeastUsedStrategy(repository.NewQuestionRepository(db)), 7))
	_, err = eng.Save(ctx, usage)
	require.NoError(t, err)

	// A newer ready version lands before the usage is reopened.
	v2 := models.Question{ID: 2, BankEntryID: 100, Version: 2, Status: models.QuestionStatusReady, Variants: 1}
	require.NoError(t, db.Create(&v2).Error)

	loaded, err := eng.LoadByID(ctx, usage.ID)
	require.NoError(t, err)
	require.NoError(t, eng.UpgradeToLatest(ctx, loaded))
	_, err = eng.Save(ctx, loaded)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.UsageQuestion{}).Where("usage_id = ?", usage.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	reloaded, err := eng.LoadByID(ctx, usage.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Questions, 1)
	require.Equal(t, v2.ID, reloaded.Questions[0].QuestionID)
	require.InDelta(t, 0, reloaded.SumMarks(), 1e-9)
}
