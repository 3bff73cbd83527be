package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openlms/quiz-api/internal/dto"
	"github.com/openlms/quiz-api/internal/models"
	"github.com/openlms/quiz-api/internal/repository"
)

var (
	ErrInvalidQuizPayload = errors.New("invalid quiz payload")
	ErrSlotShape          = errors.New("slot must carry either a bank entry or a filter")
)

// quizImportSchema guards the structural shape of an import payload before it
// reaches the validator, so malformed slot arrays fail with a precise pointer.
const quizImportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["course_id", "name", "slots"],
  "properties": {
    "course_id": {"type": "integer", "minimum": 1},
    "name": {"type": "string", "minLength": 1},
    "intro": {"type": "string"},
    "grade_method": {"enum": ["highest", "average", "first", "last"]},
    "time_limit": {"type": "integer", "minimum": 0},
    "time_close": {"type": "integer", "minimum": 0},
    "grace_period": {"type": "integer", "minimum": 0},
    "overdue_handling": {"enum": ["autosubmit", "graceperiod", "autoabandon"]},
    "questions_per_page": {"type": "integer", "minimum": 0},
    "grade": {"type": "number", "minimum": 0},
    "slots": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["slot", "page"],
        "properties": {
          "slot": {"type": "integer", "minimum": 1},
          "page": {"type": "integer", "minimum": 1},
          "question_bank_entry_id": {"type": "integer", "minimum": 1},
          "max_mark": {"type": "number", "minimum": 0},
          "filter": {"type": "object"}
        }
      }
    },
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["first_slot"],
        "properties": {
          "first_slot": {"type": "integer", "minimum": 1},
          "heading": {"type": "string"},
          "shuffle_questions": {"type": "boolean"}
        }
      }
    }
  }
}`

// QuizService creates and reads quizzes together with their slot structure.
type QuizService interface {
	Get(ctx context.Context, id uint) (dto.QuizResponse, error)
	Import(ctx context.Context, payload []byte) (dto.QuizResponse, error)
}

type quizService struct {
	quizzes    repository.QuizRepository
	transactor repository.Transactor
	schema     *jsonschema.Schema
	validate   *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// NewQuizService wires the quiz import pipeline. The schema is compiled once
// at construction; a compile failure is a programming error.
func NewQuizService(quizzes repository.QuizRepository, transactor repository.Transactor, logger zerolog.Logger) QuizService {
	schema, err := jsonschema.CompileString("quiz-import.json", quizImportSchema)
	if err != nil {
		panic(fmt.Sprintf("compile quiz import schema: %v", err))
	}

	return &quizService{
		quizzes:    quizzes,
		transactor: transactor,
		schema:     schema,
		validate:   validator.New(),
		sanitizer:  bluemonday.UGCPolicy(),
		logger:     logger.With().Str("component", "quiz_service").Logger(),
		now:        time.Now,
	}
}

func (s *quizService) Get(ctx context.Context, id uint) (dto.QuizResponse, error) {
	quiz, err := s.quizzes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResponse{}, ErrQuizNotFound
		}
		return dto.QuizResponse{}, err
	}

	slots, err := s.quizzes.ListSlots(ctx, id)
	if err != nil {
		return dto.QuizResponse{}, err
	}

	return dto.NewQuizResponse(quiz, len(slots)), nil
}

func (s *quizService) Import(ctx context.Context, payload []byte) (dto.QuizResponse, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return dto.QuizResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuizPayload, err)
	}
	if err := s.schema.Validate(raw); err != nil {
		return dto.QuizResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuizPayload, err)
	}

	var req dto.QuizImportRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return dto.QuizResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuizPayload, err)
	}
	if err := s.validate.Struct(req); err != nil {
		return dto.QuizResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuizPayload, err)
	}

	quiz, slots, sections, err := s.buildQuiz(req)
	if err != nil {
		return dto.QuizResponse{}, err
	}

	err = s.transactor.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.quizzes.Create(txCtx, &quiz); err != nil {
			return err
		}
		for i := range slots {
			slots[i].QuizID = quiz.ID
		}
		for i := range sections {
			sections[i].QuizID = quiz.ID
		}
		if err := s.quizzes.CreateSlots(txCtx, slots); err != nil {
			return err
		}
		return s.quizzes.CreateSections(txCtx, sections)
	})
	if err != nil {
		return dto.QuizResponse{}, err
	}

	s.logger.Info().Uint("quiz_id", quiz.ID).Int("slots", len(slots)).Msg("quiz imported")
	return dto.NewQuizResponse(quiz, len(slots)), nil
}

func (s *quizService) buildQuiz(req dto.QuizImportRequest) (models.Quiz, []models.QuizSlot, []models.QuizSection, error) {
	quiz := models.Quiz{
		CourseID:              req.CourseID,
		Name:                  strings.TrimSpace(req.Name),
		Intro:                 s.sanitizer.Sanitize(req.Intro),
		GradeMethod:           req.GradeMethod,
		TimeLimit:             req.TimeLimit,
		TimeClose:             req.TimeClose,
		GracePeriod:           req.GracePeriod,
		OverdueHandling:       req.OverdueHandling,
		AttemptOnLast:         req.AttemptOnLast,
		QuestionsPerPage:      req.QuestionsPerPage,
		ShuffleAnswers:        req.ShuffleAnswers,
		Grade:                 req.Grade,
		ReviewAttempt:         req.ReviewAttempt,
		ReviewCorrectness:     req.ReviewCorrectness,
		ReviewMarks:           req.ReviewMarks,
		ReviewFeedback:        req.ReviewFeedback,
		ReviewGeneralFeedback: req.ReviewGeneralFeedback,
		ReviewRightAnswer:     req.ReviewRightAnswer,
		ReviewOverallFeedback: req.ReviewOverallFeedback,
		ReviewManualComment:   req.ReviewManualComment,
	}
	if quiz.GradeMethod == "" {
		quiz.GradeMethod = models.GradeMethodHighest
	}
	if quiz.OverdueHandling == "" {
		quiz.OverdueHandling = models.OverdueAutoSubmit
	}

	slots := make([]models.QuizSlot, 0, len(req.Slots))
	for _, payload := range req.Slots {
		slot := models.QuizSlot{
			Slot:                payload.Slot,
			Page:                payload.Page,
			QuestionBankEntryID: payload.QuestionBankEntryID,
			MaxMark:             payload.MaxMark,
		}
		switch {
		case payload.QuestionBankEntryID != nil && payload.Filter != nil:
			return models.Quiz{}, nil, nil, fmt.Errorf("%w: slot %d", ErrSlotShape, payload.Slot)
		case payload.Filter != nil:
			encoded, err := json.Marshal(payload.Filter)
			if err != nil {
				return models.Quiz{}, nil, nil, err
			}
			slot.FilterCondition = datatypes.JSON(encoded)
		case payload.QuestionBankEntryID == nil:
			return models.Quiz{}, nil, nil, fmt.Errorf("%w: slot %d", ErrSlotShape, payload.Slot)
		}
		quiz.SumGrades += payload.MaxMark
		slots = append(slots, slot)
	}

	sections := make([]models.QuizSection, 0, len(req.Sections))
	for _, payload := range req.Sections {
		sections = append(sections, models.QuizSection{
			FirstSlot:        payload.FirstSlot,
			Heading:          payload.Heading,
			ShuffleQuestions: payload.ShuffleQuestions,
		})
	}

	return quiz, slots, sections, nil
}
