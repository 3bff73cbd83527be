package engine

import (
	"context"

	"github.com/openlms/quiz-api/internal/repository"
)

// VariantStrategy picks which variant of a question an attempt should see.
type VariantStrategy interface {
	ChooseVariant(ctx context.Context, instance Instance) (int, error)
}

type leastUsedStrategy struct {
	questions repository.QuestionRepository
}

// NewLeastUsedStrategy returns the default strategy: the variant that has
// been served the fewest times across all usages, lowest variant number
// breaking ties.
func NewLeastUsedStrategy(questions repository.QuestionRepository) VariantStrategy {
	return &leastUsedStrategy{questions: questions}
}

func (s *leastUsedStrategy) ChooseVariant(ctx context.Context, instance Instance) (int, error) {
	if instance.Variants <= 1 {
		return 1, nil
	}

	counts, err := s.questions.VariantCounts(ctx, instance.QuestionID)
	if err != nil {
		return 0, err
	}

	best := 1
	for variant := 2; variant <= instance.Variants; variant++ {
		if counts[variant] < counts[best] {
			best = variant
		}
	}

	return best, nil
}

type forcedVariantStrategy struct {
	forced   map[int]int
	fallback VariantStrategy
}

// NewForcedVariantStrategy overlays caller-supplied variants for specific
// slots on top of a fallback strategy. Intended for tests that need
// deterministic question renderings.
func NewForcedVariantStrategy(forced map[int]int, fallback VariantStrategy) VariantStrategy {
	return &forcedVariantStrategy{forced: forced, fallback: fallback}
}

func (s *forcedVariantStrategy) ChooseVariant(ctx context.Context, instance Instance) (int, error) {
	if variant, ok := s.forced[instance.Slot]; ok {
		return variant, nil
	}

	return s.fallback.ChooseVariant(ctx, instance)
}
