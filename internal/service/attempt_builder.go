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

// ErrSlotMismatch indicates the engine assigned a slot number different from
// the quiz's logical slot number. This is a programming defect, never
// tolerated.
var ErrSlotMismatch = errors.New("engine slot number does not match quiz slot")

// BuildOptions tunes how a new attempt's question set is assembled.
type BuildOptions struct {
	UserID uint
	// ForcedQuestions and ForcedVariants are test-only overrides keyed by
	// slot number.
	ForcedQuestions map[int]uint
	ForcedVariants  map[int]int
}

// AttemptBuilder assembles an attempt's question set, registers it with the
// engine and produces the paginated layout.
type AttemptBuilder struct {
	engine    engine.Engine
	selector  *QuestionSelector
	quizzes   repository.QuizRepository
	questions repository.QuestionRepository
	logger    zerolog.Logger
	rng       *rand.Rand
}

// NewAttemptBuilder constructs a builder.
func NewAttemptBuilder(eng engine.Engine, selector *QuestionSelector, quizzes repository.QuizRepository, questions repository.QuestionRepository, logger zerolog.Logger) *AttemptBuilder {
	return &AttemptBuilder{
		engine:    eng,
		selector:  selector,
		quizzes:   quizzes,
		questions: questions,
		logger:    logger.With().Str("component", "attempt_builder").Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// BuildNewAttempt resolves every slot to a concrete question, registers the
// questions with the engine in ascending slot order and writes the attempt's
// layout.
func (b *AttemptBuilder) BuildNewAttempt(ctx context.Context, quiz models.Quiz, attempt *models.Attempt, usage *engine.Usage, opts BuildOptions) error {
	slots, err := b.quizzes.ListSlots(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list slots for quiz %d: %w", quiz.ID, err)
	}

	sections, err := b.quizzes.ListSections(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list sections for quiz %d: %w", quiz.ID, err)
	}

	selections, err := b.selector.SelectQuestions(ctx, quiz, slots, SelectionOptions{
		UserID:          opts.UserID,
		ShuffleAnswers:  quiz.ShuffleAnswers,
		ForcedQuestions: opts.ForcedQuestions,
	})
	if err != nil {
		return err
	}

	for _, selection := range selections {
		assigned := b.engine.Register(usage, selection.Question, selection.Slot.MaxMark)
		if assigned != selection.Slot.Slot {
			return fmt.Errorf("%w: expected %d, engine assigned %d", ErrSlotMismatch, selection.Slot.Slot, assigned)
		}
	}

	var strategy engine.VariantStrategy = engine.NewLeastUsedStrategy(b.questions)
	if len(opts.ForcedVariants) > 0 {
		strategy = engine.NewForcedVariantStrategy(opts.ForcedVariants, strategy)
	}

	if err := b.engine.StartAll(ctx, usage, strategy, opts.UserID); err != nil {
		return err
	}

	attempt.Layout = models.EncodeLayout(b.assembleLayout(sections, slots, quiz.QuestionsPerPage))
	return nil
}

// BuildOnLast clones every question and its running state from the previous
// attempt's usage into the new one, remapping slot numbers and rewriting the
// layout accordingly.
func (b *AttemptBuilder) BuildOnLast(ctx context.Context, quiz models.Quiz, attempt *models.Attempt, usage *engine.Usage, previous models.Attempt) error {
	prevUsage, err := b.engine.LoadByID(ctx, previous.UniqueID)
	if err != nil {
		return fmt.Errorf("load usage %d of previous attempt: %w", previous.UniqueID, err)
	}

	slotMap := make(map[int]int, len(prevUsage.Questions))
	for _, instance := range prevUsage.Questions {
		question, err := b.engine.LoadQuestion(ctx, instance.QuestionID, quiz.ShuffleAnswers)
		if err != nil {
			return fmt.Errorf("load question %d: %w", instance.QuestionID, err)
		}

		newSlot := b.engine.Register(usage, question, instance.MaxMark)
		cloned := &usage.Questions[len(usage.Questions)-1]
		cloned.Variant = instance.Variant
		cloned.State = instance.State
		slotMap[instance.Slot] = newSlot
	}

	layout := previous.LayoutSlots()
	rewritten := make([]int, 0, len(layout))
	for _, entry := range layout {
		if entry == 0 {
			rewritten = append(rewritten, 0)
			continue
		}
		newSlot, ok := slotMap[entry]
		if !ok {
			return fmt.Errorf("%w: previous layout references unknown slot %d", ErrSlotMismatch, entry)
		}
		rewritten = append(rewritten, newSlot)
	}

	attempt.Layout = models.EncodeLayout(rewritten)
	return nil
}

// assembleLayout paginates slots section by section. Shuffled sections are
// randomly permuted and filled onto pages of at most perPage slots (0 means
// all on one page); unshuffled sections follow each slot's stored page
// number. Every section ends with exactly one page-break sentinel.
func (b *AttemptBuilder) assembleLayout(sections []models.QuizSection, slots []models.QuizSlot, perPage int) []int {
	ordered := make([]models.QuizSlot, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slot < ordered[j].Slot })

	if len(sections) == 0 {
		sections = []models.QuizSection{{FirstSlot: 1}}
	}

	layout := make([]int, 0, len(ordered)+len(sections))
	for i, section := range sections {
		lastSlot := int(^uint(0) >> 1)
		if i+1 < len(sections) {
			lastSlot = sections[i+1].FirstSlot - 1
		}

		var sectionSlots []models.QuizSlot
		for _, slot := range ordered {
			if slot.Slot >= section.FirstSlot && slot.Slot <= lastSlot {
				sectionSlots = append(sectionSlots, slot)
			}
		}

		if section.ShuffleQuestions {
			layout = append(layout, b.shuffledSectionLayout(sectionSlots, perPage)...)
		} else {
			layout = append(layout, pagedSectionLayout(sectionSlots)...)
		}
	}

	return layout
}

func (b *AttemptBuilder) shuffledSectionLayout(slots []models.QuizSlot, perPage int) []int {
	layout := make([]int, 0, len(slots)+1)

	perm := b.rng.Perm(len(slots))
	for i, idx := range perm {
		layout = append(layout, slots[idx].Slot)
		onPage := i + 1
		if perPage > 0 && onPage%perPage == 0 && i+1 < len(perm) {
			layout = append(layout, 0)
		}
	}

	return append(layout, 0)
}

func pagedSectionLayout(slots []models.QuizSlot) []int {
	layout := make([]int, 0, len(slots)+1)

	for i, slot := range slots {
		if i > 0 && slot.Page > slots[i-1].Page {
			layout = append(layout, 0)
		}
		layout = append(layout, slot.Slot)
	}

	return append(layout, 0)
}
