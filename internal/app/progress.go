package app

import (
	"fmt"
	"time"

	"proquiz-service/internal/domain"
)

// currentQuestionID returns the id at the cursor, or false once the player
// is at or past the end of their order.
func currentQuestionID(p domain.PlayerProgress) (int64, bool) {
	if p.Completed || p.CurrentIndex < 0 || p.CurrentIndex >= len(p.Order) {
		return 0, false
	}
	return p.Order[p.CurrentIndex], true
}

// checkSequence rejects any question other than the one at the cursor.
func checkSequence(p domain.PlayerProgress, questionID int64) error {
	current, ok := currentQuestionID(p)
	if !ok {
		return fmt.Errorf("%w: no question pending", domain.ErrSequenceMismatch)
	}
	if current != questionID {
		return fmt.Errorf("%w: expected question %d, got %d", domain.ErrSequenceMismatch, current, questionID)
	}
	return nil
}

// advance moves the cursor by exactly one.
func advance(p domain.PlayerProgress) domain.PlayerProgress {
	p.CurrentIndex++
	return p
}

func exhausted(p domain.PlayerProgress) bool {
	return p.CurrentIndex >= len(p.Order)
}

func markCompleted(p domain.PlayerProgress, now time.Time) domain.PlayerProgress {
	p.Completed = true
	p.CompletionTime = &now
	return p
}

func newProgress(playerID, quizID int64, order []int64) domain.PlayerProgress {
	return domain.PlayerProgress{
		PlayerID: playerID,
		QuizID:   quizID,
		Order:    order,
	}
}
