package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrSequenceMismatch = errors.New("question is not the current one")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
)

var (
	// ErrQuizNotFound is returned when the quiz id is unknown.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrPlayerNotFound is returned when a player id is unknown or belongs to another quiz.
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	// ErrQuestionNotFound indicates a question id outside the quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrProgressNotFound is returned by stores when a player has no progress row.
	ErrProgressNotFound = fmt.Errorf("progress %w", ErrNotFound)

	ErrQuizNotJoinable   = fmt.Errorf("%w: quiz is not accepting players", ErrInvalidState)
	ErrQuizNotLive       = fmt.Errorf("%w: quiz is not running", ErrInvalidState)
	ErrQuizAlreadyBegun  = fmt.Errorf("%w: quiz has already been started", ErrInvalidState)
	ErrQuizAlreadyEnded  = fmt.Errorf("%w: quiz has already ended", ErrInvalidState)
	ErrQuizNotEnded      = fmt.Errorf("%w: quiz has not ended", ErrInvalidState)
	ErrQuizArchived      = fmt.Errorf("%w: quiz is already archived", ErrInvalidState)
	ErrResultsNotVisible = fmt.Errorf("%w: results are not available yet", ErrInvalidState)
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError with a single field message.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Kind classifies an error for transports.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindUsernameTaken    Kind = "username_taken"
	KindSequenceMismatch Kind = "sequence_mismatch"
	KindValidation       Kind = "validation"
	KindForbidden        Kind = "forbidden"
	KindInternal         Kind = "internal"
)

// KindOf reports the kind of err, or KindInternal for anything unclassified.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUsernameTaken):
		return KindUsernameTaken
	case errors.Is(err, ErrSequenceMismatch):
		return KindSequenceMismatch
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}
