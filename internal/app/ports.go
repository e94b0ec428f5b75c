package app

import (
	"context"

	"proquiz-service/internal/domain"
)

// Store runs one logical transaction per operation. The callback's error
// aborts the transaction; nothing it wrote becomes visible.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the storage surface available inside a transaction.
type Tx interface {
	CreateQuiz(ctx context.Context, quiz *domain.Quiz, questions []domain.Question) error
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	// LockQuiz reads the quiz and holds it exclusively until the transaction ends.
	LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	// ListQuizzes returns every quiz in creation order.
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) error
	// DeleteQuiz removes the quiz with all questions, players, answers and progress.
	DeleteQuiz(ctx context.Context, quizID int64) error

	ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
	QuestionCounts(ctx context.Context) (map[int64]int, error)

	// CreatePlayer assigns the player id; a duplicate username in the quiz
	// returns domain.ErrUsernameTaken.
	CreatePlayer(ctx context.Context, player *domain.Player) error
	GetPlayer(ctx context.Context, playerID int64) (domain.Player, error)
	// ListPlayers returns the quiz players in join order.
	ListPlayers(ctx context.Context, quizID int64) ([]domain.Player, error)
	ListAllPlayers(ctx context.Context) ([]domain.Player, error)
	UpdatePlayerScore(ctx context.Context, playerID int64, score domain.Score) error
	DeletePlayer(ctx context.Context, playerID int64) error

	// CreateProgress inserts the row unless one already exists for the
	// player and reports whether it did.
	CreateProgress(ctx context.Context, progress domain.PlayerProgress) (bool, error)
	GetProgress(ctx context.Context, playerID, quizID int64) (domain.PlayerProgress, error)
	UpdateProgress(ctx context.Context, progress domain.PlayerProgress) error
	ListProgress(ctx context.Context, quizID int64) ([]domain.PlayerProgress, error)

	AddAnswer(ctx context.Context, answer *domain.PlayerAnswer) error
	// ListAnswers returns the player's answers in submission order.
	ListAnswers(ctx context.Context, playerID int64) ([]domain.PlayerAnswer, error)
	CountAnswers(ctx context.Context, quizID int64) (int, error)

	// PurgeParticipants deletes every player, answer and progress row of the quiz.
	PurgeParticipants(ctx context.Context, quizID int64) error
	// ResetScores zeroes scores and rewinds progress for the quiz players.
	ResetScores(ctx context.Context, quizID int64) error
	// ResetAllScores does the same for every quiz.
	ResetAllScores(ctx context.Context) error
}

// QuestionSource serves the immutable question set of a quiz.
type QuestionSource interface {
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
	Forget(ctx context.Context, quizID int64) error
}

// Notifier fans committed changes out to live subscribers. It carries
// notifications only; the store stays authoritative.
type Notifier interface {
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe returns a channel of events for one quiz. The caller must
	// invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, quizID int64) (<-chan domain.Event, func(), error)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, domain.Event) error { return nil }

func (nopNotifier) Subscribe(context.Context, int64) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event)
	return ch, func() {}, nil
}
