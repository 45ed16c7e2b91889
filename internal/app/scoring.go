package app

import (
	"fmt"
	"math"

	"live-quiz-service/internal/domain"
)

const (
	// MaxPoints is awarded for an instant correct answer.
	MaxPoints = 100
	// MinPoints is the floor for a correct answer given at the time limit.
	MinPoints = 10
)

// Score grades a submission for question q. It is the only scoring formula; every
// transport goes through it. Points decay linearly from MaxPoints at zero seconds to
// MinPoints at the time limit. Late answers and unknown options are rejected rather
// than scored as zero.
func Score(q domain.Question, option int, timeTaken float64) (bool, int, error) {
	if option < 0 || option >= len(q.Options) {
		return false, 0, fmt.Errorf("%w: option %d out of range [0,%d)", domain.ErrLateOrInvalid, option, len(q.Options))
	}
	limit := float64(q.Limit())
	if math.IsNaN(timeTaken) || timeTaken < 0 {
		return false, 0, fmt.Errorf("%w: invalid time taken %v", domain.ErrLateOrInvalid, timeTaken)
	}
	if timeTaken > limit {
		return false, 0, fmt.Errorf("%w: answered after %.2fs, limit is %ds", domain.ErrLateOrInvalid, timeTaken, q.Limit())
	}
	if !q.Options[option].IsCorrect {
		return false, 0, nil
	}

	r := math.Min(timeTaken/limit, 1)
	points := int(math.Round(MaxPoints - r*(MaxPoints-MinPoints)))
	if points < MinPoints {
		points = MinPoints
	}
	return true, points, nil
}
