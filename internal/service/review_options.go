package service

import (
	"time"

	"github.com/openlms/quiz-api/internal/models"
)

// Review phases: which window of an attempt's life the viewer is looking at.
const (
	PhaseDuring           = "during"
	PhaseImmediatelyAfter = "immediately_after"
	PhaseLaterWhileOpen   = "later_while_open"
	PhaseAfterClose       = "after_close"
)

// immediateReviewWindow is how long after finishing an attempt still counts
// as "immediately after".
const immediateReviewWindow = 2 * time.Minute

// Marks visibility levels.
const (
	MarksHidden     = 0
	MarksMaxOnly    = 1
	MarksMarkAndMax = 2
)

// ViewerCapabilities describes what the viewing user is allowed to do, as
// decided by the injected access policy.
type ViewerCapabilities struct {
	ViewReports      bool
	ViewHiddenGrades bool
}

// DisplayOptions captures what one viewer may see of one attempt.
type DisplayOptions struct {
	Attempt         bool `json:"attempt"`
	Correctness     bool `json:"correctness"`
	Marks           int  `json:"marks"`
	Feedback        bool `json:"feedback"`
	GeneralFeedback bool `json:"general_feedback"`
	RightAnswer     bool `json:"right_answer"`
	OverallFeedback bool `json:"overall_feedback"`
	ManualComment   bool `json:"manual_comment"`
	History         bool `json:"history"`
}

// CombinedDisplayOptions aggregates visibility across several attempts: Any
// holds the union (visible in at least one attempt), All the intersection.
type CombinedDisplayOptions struct {
	Any DisplayOptions `json:"any"`
	All DisplayOptions `json:"all"`
}

// AttemptPhase determines the temporal review phase for an attempt. The
// immediate window outranks quiz closure: an attempt finished seconds before
// the close time still reviews as immediately-after until the window expires.
func AttemptPhase(quiz models.Quiz, attempt models.Attempt, now time.Time) string {
	if attempt.InProgress() || attempt.State == models.AttemptNotStarted {
		return PhaseDuring
	}

	if attempt.TimeFinish > 0 && now.Unix() < attempt.TimeFinish+int64(immediateReviewWindow.Seconds()) {
		return PhaseImmediatelyAfter
	}

	if quiz.IsClosed(now) {
		return PhaseAfterClose
	}

	return PhaseLaterWhileOpen
}

func phaseBit(phase string) int {
	switch phase {
	case PhaseDuring:
		return models.ReviewDuring
	case PhaseImmediatelyAfter:
		return models.ReviewImmediatelyAfter
	case PhaseLaterWhileOpen:
		return models.ReviewLaterWhileOpen
	default:
		return models.ReviewAfterClose
	}
}

// ReviewOptions derives the visibility flags for one attempt and viewer. A
// privileged viewer (reports plus hidden grades) sees everything, except
// while sitting a preview where the quiz's during-phase settings stand.
func ReviewOptions(quiz models.Quiz, attempt models.Attempt, viewer ViewerCapabilities, now time.Time) DisplayOptions {
	phase := AttemptPhase(quiz, attempt, now)
	bit := phaseBit(phase)

	options := DisplayOptions{
		Attempt:         quiz.ReviewAttempt&bit != 0,
		Correctness:     quiz.ReviewCorrectness&bit != 0,
		Feedback:        quiz.ReviewFeedback&bit != 0,
		GeneralFeedback: quiz.ReviewGeneralFeedback&bit != 0,
		RightAnswer:     quiz.ReviewRightAnswer&bit != 0,
		OverallFeedback: quiz.ReviewOverallFeedback&bit != 0,
		ManualComment:   quiz.ReviewManualComment&bit != 0,
	}
	if quiz.ReviewMarks&bit != 0 {
		options.Marks = MarksMarkAndMax
	} else if options.Attempt {
		options.Marks = MarksMaxOnly
	}

	if viewer.ViewReports && viewer.ViewHiddenGrades && !attempt.Preview {
		options = DisplayOptions{
			Attempt:         true,
			Correctness:     true,
			Marks:           MarksMarkAndMax,
			Feedback:        true,
			GeneralFeedback: true,
			RightAnswer:     true,
			OverallFeedback: true,
			ManualComment:   true,
			History:         true,
		}
	}

	return options
}

// CombineReviewOptions folds options across multiple attempts into the union
// of what any attempt shows and the intersection of what all attempts show.
// An empty attempt set yields the most restrictive result for both.
func CombineReviewOptions(quiz models.Quiz, attempts []models.Attempt, viewer ViewerCapabilities, now time.Time) CombinedDisplayOptions {
	var combined CombinedDisplayOptions
	if len(attempts) == 0 {
		return combined
	}

	for i, attempt := range attempts {
		options := ReviewOptions(quiz, attempt, viewer, now)
		if i == 0 {
			combined.Any = options
			combined.All = options
			continue
		}

		combined.Any.Attempt = combined.Any.Attempt || options.Attempt
		combined.Any.Correctness = combined.Any.Correctness || options.Correctness
		combined.Any.Feedback = combined.Any.Feedback || options.Feedback
		combined.Any.GeneralFeedback = combined.Any.GeneralFeedback || options.GeneralFeedback
		combined.Any.RightAnswer = combined.Any.RightAnswer || options.RightAnswer
		combined.Any.OverallFeedback = combined.Any.OverallFeedback || options.OverallFeedback
		combined.Any.ManualComment = combined.Any.ManualComment || options.ManualComment
		combined.Any.History = combined.Any.History || options.History
		if options.Marks > combined.Any.Marks {
			combined.Any.Marks = options.Marks
		}

		combined.All.Attempt = combined.All.Attempt && options.Attempt
		combined.All.Correctness = combined.All.Correctness && options.Correctness
		combined.All.Feedback = combined.All.Feedback && options.Feedback
		combined.All.GeneralFeedback = combined.All.GeneralFeedback && options.GeneralFeedback
		combined.All.RightAnswer = combined.All.RightAnswer && options.RightAnswer
		combined.All.OverallFeedback = combined.All.OverallFeedback && options.OverallFeedback
		combined.All.ManualComment = combined.All.ManualComment && options.ManualComment
		combined.All.History = combined.All.History && options.History
		if options.Marks < combined.All.Marks {
			combined.All.Marks = options.Marks
		}
	}

	return combined
}
