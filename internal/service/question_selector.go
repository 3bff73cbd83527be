package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/engine"
	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

// ErrDraftQuestion indicates a slot references a question whose current
// version is a draft; drafts must never appear in an attempt.
var ErrDraftQuestion = errors.New("question version is a draft")

// ErrNotEnoughQuestions indicates a random slot's pool is exhausted for this
// user.
var ErrNotEnoughQuestions = errors.New("not enough questions available")

// ErrForcedQuestionUnavailable indicates a caller-forced question does not
// satisfy the slot's filter condition.
var ErrForcedQuestionUnavailable = errors.New("forced question does not satisfy slot filter")

// SelectionOptions tunes question selection for one attempt build.
type SelectionOptions struct {
	UserID         uint
	ShuffleAnswers bool
	// ForcedQuestions maps slot numbers to bank entry ids and bypasses random
	// selection for those slots. Test-only override.
	ForcedQuestions map[int]uint
}

// SelectedQuestion pairs a slot with the concrete question chosen for it.
type SelectedQuestion struct {
	Slot     models.QuizSlot
	Question models.Question
}

// QuestionSelector resolves a quiz's slot definitions to concrete questions,
// resolving random placeholders against the user's prior-attempt history.
type QuestionSelector struct {
	engine    engine.Engine
	questions repository.QuestionRepository
	logger    zerolog.Logger
	rng       *rand.Rand
}

// NewQuestionSelector constructs a selector.
func NewQuestionSelector(eng engine.Engine, questions repository.QuestionRepository, logger zerolog.Logger) *QuestionSelector {
	return &QuestionSelector{
		engine:    eng,
		questions: questions,
		logger:    logger.With().Str("component", "question_selector").Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectQuestions produces one concrete question per slot, in ascending slot
// order so forced-choice overrides keyed by slot number line up with the
// engine's registration order.
func (s *QuestionSelector) SelectQuestions(ctx context.Context, quiz models.Quiz, slots []models.QuizSlot, opts SelectionOptions) ([]SelectedQuestion, error) {
	ordered := make([]models.QuizSlot, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slot < ordered[j].Slot })

	used, err := s.questions.UsedBankEntryIDs(ctx, quiz.ID, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("load question usage history: %w", err)
	}

	loader := newRandomLoader(s.questions, used, s.rng)

	selections := make([]SelectedQuestion, 0, len(ordered))
	for _, slot := range ordered {
		var question models.Question

		switch {
		case !slot.IsRandom():
			question, err = s.resolveFixed(ctx, slot, opts.ShuffleAnswers)
		default:
			question, err = s.resolveRandom(ctx, loader, slot, opts)
		}
		if err != nil {
			return nil, err
		}

		question.ShuffleAnswers = opts.ShuffleAnswers
		loader.markUsed(question.BankEntryID)
		selections = append(selections, SelectedQuestion{Slot: slot, Question: question})
	}

	return selections, nil
}

func (s *QuestionSelector) resolveFixed(ctx context.Context, slot models.QuizSlot, shuffleAnswers bool) (models.Question, error) {
	if slot.QuestionBankEntryID == nil {
		return models.Question{}, fmt.Errorf("slot %d has neither a question reference nor a filter condition", slot.Slot)
	}

	current, err := s.questions.LatestByBankEntry(ctx, *slot.QuestionBankEntryID)
	if err != nil {
		return models.Question{}, fmt.Errorf("load question for slot %d: %w", slot.Slot, err)
	}

	if current.IsDraft() {
		return models.Question{}, fmt.Errorf("%w: slot %d, bank entry %d", ErrDraftQuestion, slot.Slot, current.BankEntryID)
	}

	return s.engine.LoadQuestion(ctx, current.ID, shuffleAnswers)
}

func (s *QuestionSelector) resolveRandom(ctx context.Context, loader *randomLoader, slot models.QuizSlot, opts SelectionOptions) (models.Question, error) {
	filter, err := slot.Filter()
	if err != nil {
		return models.Question{}, fmt.Errorf("decode filter for slot %d: %w", slot.Slot, err)
	}

	if forcedEntry, ok := opts.ForcedQuestions[slot.Slot]; ok {
		question, err := s.questions.LatestReadyByBankEntry(ctx, forcedEntry)
		if err != nil {
			return models.Question{}, fmt.Errorf("%w: slot %d, bank entry %d", ErrForcedQuestionUnavailable, slot.Slot, forcedEntry)
		}
		if !filter.Matches(question) {
			return models.Question{}, fmt.Errorf("%w: slot %d, bank entry %d", ErrForcedQuestionUnavailable, slot.Slot, forcedEntry)
		}
		return question, nil
	}

	question, err := loader.next(ctx, filter)
	if err != nil {
		return models.Question{}, fmt.Errorf("%w: slot %d", ErrNotEnoughQuestions, slot.Slot)
	}

	return question, nil
}

// randomLoader draws questions matching a filter, excluding bank entries the
// user has already seen in earlier attempts and entries taken by previous
// slots of this build.
type randomLoader struct {
	questions repository.QuestionRepository
	used      map[uint]struct{}
	rng       *rand.Rand
}

func newRandomLoader(questions repository.QuestionRepository, usedEntries []uint, rng *rand.Rand) *randomLoader {
	used := make(map[uint]struct{}, len(usedEntries))
	for _, id := range usedEntries {
		used[id] = struct{}{}
	}

	return &randomLoader{questions: questions, used: used, rng: rng}
}

func (l *randomLoader) markUsed(bankEntryID uint) {
	l.used[bankEntryID] = struct{}{}
}

func (l *randomLoader) next(ctx context.Context, filter models.SlotFilter) (models.Question, error) {
	candidates, err := l.questions.ListReadyByFilter(ctx, filter)
	if err != nil {
		return models.Question{}, err
	}

	eligible := candidates[:0:0]
	for _, candidate := range candidates {
		if _, taken := l.used[candidate.BankEntryID]; taken {
			continue
		}
		eligible = append(eligible, candidate)
	}

	if len(eligible) == 0 {
		return models.Question{}, errors.New("random pool exhausted")
	}

	return eligible[l.rng.Intn(len(eligible))], nil
}
