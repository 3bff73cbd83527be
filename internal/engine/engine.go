package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

// ErrNoReadyVersion indicates a bank entry has no non-draft version to serve.
var ErrNoReadyVersion = errors.New("question has no ready version")

// Instance is one question registered in a usage, slot-numbered from 1.
type Instance struct {
	Slot           int
	QuestionID     uint
	BankEntryID    uint
	Variant        int
	Variants       int
	MaxMark        float64
	ShuffleAnswers bool
	State          datatypes.JSON
}

// Mark extracts the mark recorded in the instance's interaction state, zero
// when ungraded.
func (i Instance) Mark() float64 {
	if len(i.State) == 0 {
		return 0
	}

	var state struct {
		Mark float64 `json:"mark"`
	}
	if err := json.Unmarshal(i.State, &state); err != nil {
		return 0
	}

	return state.Mark
}

// Usage is the engine's in-memory record of questions-in-progress for one
// attempt. It only exists in the database once Save has been called.
type Usage struct {
	ID        uint
	QuizID    uint
	Preview   bool
	Questions []Instance
}

// SumMarks totals the marks recorded across all instances.
func (u *Usage) SumMarks() float64 {
	var sum float64
	for _, q := range u.Questions {
		sum += q.Mark()
	}
	return sum
}

// Engine is the question/grading collaborator the attempt subsystem drives.
type Engine interface {
	LoadQuestion(ctx context.Context, questionID uint, shuffleAnswers bool) (models.Question, error)
	NewUsage(quizID uint, preview bool) *Usage
	// Register appends the question to the usage and returns the engine's
	// assigned slot number.
	Register(usage *Usage, question models.Question, maxMark float64) int
	// StartAll picks a variant for every registered question and initialises
	// its interaction state.
	StartAll(ctx context.Context, usage *Usage, strategy VariantStrategy, userID uint) error
	Save(ctx context.Context, usage *Usage) (uint, error)
	Delete(ctx context.Context, usageID uint) error
	LoadByID(ctx context.Context, usageID uint) (*Usage, error)
	// UpgradeToLatest swaps every question in the usage for the latest ready
	// version of its bank entry. Used when promoting a pre-created attempt.
	UpgradeToLatest(ctx context.Context, usage *Usage) error
}

type gormEngine struct {
	usages    repository.UsageRepository
	questions repository.QuestionRepository
	logger    zerolog.Logger
}

// New constructs the database-backed engine.
func New(usages repository.UsageRepository, questions repository.QuestionRepository, logger zerolog.Logger) Engine {
	return &gormEngine{
		usages:    usages,
		questions: questions,
		logger:    logger.With().Str("component", "question_engine").Logger(),
	}
}

func (e *gormEngine) LoadQuestion(ctx context.Context, questionID uint, shuffleAnswers bool) (models.Question, error) {
	question, err := e.questions.GetByID(ctx, questionID)
	if err != nil {
		return models.Question{}, err
	}

	question.ShuffleAnswers = shuffleAnswers
	return question, nil
}

func (e *gormEngine) NewUsage(quizID uint, preview bool) *Usage {
	return &Usage{QuizID: quizID, Preview: preview}
}

func (e *gormEngine) Register(usage *Usage, question models.Question, maxMark float64) int {
	slot := len(usage.Questions) + 1
	usage.Questions = append(usage.Questions, Instance{
		Slot:           slot,
		QuestionID:     question.ID,
		BankEntryID:    question.BankEntryID,
		Variants:       question.Variants,
		MaxMark:        maxMark,
		ShuffleAnswers: question.ShuffleAnswers,
	})

	return slot
}

func (e *gormEngine) StartAll(ctx context.Context, usage *Usage, strategy VariantStrategy, userID uint) error {
	for i := range usage.Questions {
		instance := &usage.Questions[i]
		if instance.Variant != 0 {
			continue
		}

		variant, err := strategy.ChooseVariant(ctx, *instance)
		if err != nil {
			return fmt.Errorf("choose variant for slot %d: %w", instance.Slot, err)
		}
		instance.Variant = variant
		instance.State = freshState()
	}

	return nil
}

func (e *gormEngine) Save(ctx context.Context, usage *Usage) (uint, error) {
	record := models.QuestionUsage{
		ID:      usage.ID,
		QuizID:  usage.QuizID,
		Preview: usage.Preview,
	}
	for _, q := range usage.Questions {
		record.Questions = append(record.Questions, models.UsageQuestion{
			UsageID:    usage.ID,
			Slot:       q.Slot,
			QuestionID: q.QuestionID,
			Variant:    q.Variant,
			MaxMark:    q.MaxMark,
			State:      q.State,
		})
	}

	if err := e.usages.Save(ctx, &record); err != nil {
		return 0, err
	}

	usage.ID = record.ID
	return record.ID, nil
}

func (e *gormEngine) Delete(ctx context.Context, usageID uint) error {
	return e.usages.Delete(ctx, usageID)
}

func (e *gormEngine) LoadByID(ctx context.Context, usageID uint) (*Usage, error) {
	record, err := e.usages.GetByID(ctx, usageID)
	if err != nil {
		return nil, err
	}

	usage := &Usage{
		ID:      record.ID,
		QuizID:  record.QuizID,
		Preview: record.Preview,
	}
	for _, q := range record.Questions {
		question, err := e.questions.GetByID(ctx, q.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("load question %d for slot %d: %w", q.QuestionID, q.Slot, err)
		}
		usage.Questions = append(usage.Questions, Instance{
			Slot:        q.Slot,
			QuestionID:  q.QuestionID,
			BankEntryID: question.BankEntryID,
			Variant:     q.Variant,
			Variants:    question.Variants,
			MaxMark:     q.MaxMark,
			State:       q.State,
		})
	}

	sort.Slice(usage.Questions, func(i, j int) bool {
		return usage.Questions[i].Slot < usage.Questions[j].Slot
	})

	return usage, nil
}

func (e *gormEngine) UpgradeToLatest(ctx context.Context, usage *Usage) error {
	for i := range usage.Questions {
		instance := &usage.Questions[i]

		latest, err := e.questions.LatestReadyByBankEntry(ctx, instance.BankEntryID)
		if err != nil {
			return fmt.Errorf("%w: bank entry %d", ErrNoReadyVersion, instance.BankEntryID)
		}

		if latest.ID == instance.QuestionID {
			continue
		}

		e.logger.Debug().
			Int("slot", instance.Slot).
			Uint("old_question_id", instance.QuestionID).
			Uint("new_question_id", latest.ID).
			Msg("upgrading question to latest version")

		instance.QuestionID = latest.ID
		instance.Variants = latest.Variants
		instance.State = freshState()
	}

	return nil
}

func freshState() datatypes.JSON {
	return datatypes.JSON(`{"status":"todo","mark":0}`)
}
