package app

import (
	"time"

	"proquiz-service/internal/domain"
)

// LifecycleAction is an administrative transition request.
type LifecycleAction string

const (
	ActionStart   LifecycleAction = "start"
	ActionEnd     LifecycleAction = "end"
	ActionArchive LifecycleAction = "archive"
)

// Transition applies action to quiz. The quiz is returned unchanged with an
// InvalidState error when the action is illegal in the current state.
func Transition(quiz domain.Quiz, action LifecycleAction, now time.Time) (domain.Quiz, error) {
	switch action {
	case ActionStart:
		switch quiz.Status {
		case domain.StatusNotStarted:
			quiz.Status = domain.StatusStarted
			return quiz, nil
		case domain.StatusStarted:
			return quiz, domain.ErrQuizAlreadyBegun
		default:
			return quiz, domain.ErrQuizAlreadyEnded
		}
	case ActionEnd:
		if quiz.Status == domain.StatusEnded {
			return quiz, domain.ErrQuizAlreadyEnded
		}
		quiz.Status = domain.StatusEnded
		quiz.EndedAt = &now
		return quiz, nil
	case ActionArchive:
		if quiz.Status != domain.StatusEnded {
			return quiz, domain.ErrQuizNotEnded
		}
		if quiz.IsArchived {
			return quiz, domain.ErrQuizArchived
		}
		quiz.IsArchived = true
		if quiz.EndedAt == nil {
			quiz.EndedAt = &now
		}
		return quiz, nil
	default:
		return quiz, domain.NewValidationError("action", "unknown lifecycle action")
	}
}

// Reoffer returns the quiz to a fresh not_started state. Participant rows
// are purged separately in the same transaction.
func Reoffer(quiz domain.Quiz) domain.Quiz {
	quiz.Status = domain.StatusNotStarted
	quiz.IsArchived = false
	quiz.EndedAt = nil
	return quiz
}

func requireJoinable(quiz domain.Quiz) error {
	if quiz.IsArchived {
		return domain.ErrQuizNotJoinable
	}
	switch quiz.Status {
	case domain.StatusNotStarted, domain.StatusStarted:
		return nil
	default:
		return domain.ErrQuizNotJoinable
	}
}

func requireLive(quiz domain.Quiz) error {
	if quiz.Status != domain.StatusStarted {
		return domain.ErrQuizNotLive
	}
	return nil
}
