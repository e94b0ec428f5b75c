package domain

import "time"

// QuizStatus is the lifecycle state of a quiz.
type QuizStatus string

const (
	StatusNotStarted QuizStatus = "not_started"
	StatusStarted    QuizStatus = "started"
	StatusEnded      QuizStatus = "ended"
)

// Quiz is an imported question set plus its lifecycle state.
// EndedAt is set once the quiz has ended or been archived.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AdminName   string     `json:"adminName"`
	Status      QuizStatus `json:"status"`
	IsArchived  bool       `json:"isArchived"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// QuestionKind selects the evaluation rule for a question.
type QuestionKind string

const (
	KindChoice   QuestionKind = "choice"
	KindFreeText QuestionKind = "free_text"
)

// Question is immutable after import. For choice questions CorrectAnswer
// holds the text of the correct option.
type Question struct {
	ID            int64        `json:"id"`
	QuizID        int64        `json:"quizId"`
	Position      int          `json:"position"`
	Text          string       `json:"text"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer"`
}

// Score is the structured player score. Bonus marks the one-time
// first-finisher award.
type Score struct {
	Base  int  `json:"base"`
	Bonus bool `json:"bonus"`
}

// Points is the score used for ordering.
func (s Score) Points() int {
	if s.Bonus {
		return s.Base + 1
	}
	return s.Base
}

// Player is a participant of a single quiz.
type Player struct {
	ID       int64     `json:"id"`
	QuizID   int64     `json:"quizId"`
	Username string    `json:"username"`
	Score    Score     `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PlayerAnswer records one submission attempt. Answer holds the
// normalized text.
type PlayerAnswer struct {
	ID          int64     `json:"id"`
	PlayerID    int64     `json:"playerId"`
	QuestionID  int64     `json:"questionId"`
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// PlayerProgress is the cursor of one player through their frozen
// question order.
type PlayerProgress struct {
	PlayerID       int64      `json:"playerId"`
	QuizID         int64      `json:"quizId"`
	Order          []int64    `json:"order"`
	CurrentIndex   int        `json:"currentIndex"`
	Completed      bool       `json:"completed"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
}

// QuestionDraft is one validated question tuple handed over by an importer.
type QuestionDraft struct {
	Text          string
	Kind          QuestionKind
	Options       []string
	CorrectAnswer string
}

// QuizImport is the payload an importer produces.
type QuizImport struct {
	Title       string
	Description string
	AdminName   string
	Questions   []QuestionDraft
	Skipped     int
}

// Turn is what a player sees when asking for their current question.
// Question is nil once Completed is true.
type Turn struct {
	Question  *Question `json:"question,omitempty"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Completed bool      `json:"completed"`
}

// AnswerResult summarizes a submission.
type AnswerResult struct {
	QuestionID    int64  `json:"questionId"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Score         Score  `json:"score"`
	Completed     bool   `json:"completed"`
	BonusAwarded  bool   `json:"bonusAwarded"`
}
