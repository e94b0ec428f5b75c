package domain

// RankingEntry is one row of a per-quiz leaderboard.
type RankingEntry struct {
	Rank     int    `json:"rank"`
	PlayerID int64  `json:"playerId"`
	Username string `json:"username"`
	Score    Score  `json:"score"`
	Total    int    `json:"total"`
}

// OverallEntry aggregates one participant name across all quizzes.
type OverallEntry struct {
	Rank        int    `json:"rank"`
	Username    string `json:"username"`
	QuizScore   int    `json:"quizScore"`
	Quizzes     int    `json:"quizzes"`
	Bonuses     int    `json:"bonuses"`
	TotalPoints int    `json:"totalPoints"`
}

// RankingDelta compares a participant's all-time totals before and after
// one quiz.
type RankingDelta struct {
	Username        string `json:"username"`
	PreviousTotal   int    `json:"previousTotal"`
	PointsGained    int    `json:"pointsGained"`
	NewTotal        int    `json:"newTotal"`
	PreviousQuizzes int    `json:"previousQuizzes"`
	PreviousBonuses int    `json:"previousBonuses"`
	BonusGained     int    `json:"bonusGained"`
}

// Standings is a per-quiz leaderboard snapshot.
type Standings struct {
	QuizID  int64          `json:"quizId"`
	Status  QuizStatus     `json:"status"`
	Entries []RankingEntry `json:"entries"`
}

// EventType names a live notification.
type EventType string

const (
	EventStatus      EventType = "status"
	EventLeaderboard EventType = "leaderboard"
	EventDeleted     EventType = "deleted"
)

// Event is pushed to live subscribers of a quiz after a committed change.
type Event struct {
	Type      EventType  `json:"type"`
	QuizID    int64      `json:"quizId"`
	Status    QuizStatus `json:"status,omitempty"`
	Standings *Standings `json:"standings,omitempty"`
}

// AnswerReview pairs a question with the player's latest answer to it.
type AnswerReview struct {
	Question Question `json:"question"`
	Answer   string   `json:"answer"`
	Answered bool     `json:"answered"`
	Correct  bool     `json:"correct"`
}

// Results is the post-quiz view. Player, Delta and Answers are set for a
// player viewer; AdminScore is set for an administrator.
type Results struct {
	Quiz       Quiz           `json:"quiz"`
	Ranking    []RankingEntry `json:"ranking"`
	Overall    []OverallEntry `json:"overall"`
	Player     *Player        `json:"player,omitempty"`
	Rank       int            `json:"rank,omitempty"`
	Delta      *RankingDelta  `json:"delta,omitempty"`
	Answers    []AnswerReview `json:"answers,omitempty"`
	AdminScore int            `json:"adminScore,omitempty"`
}

// Performance is the chart-friendly form of a quiz leaderboard.
type Performance struct {
	Labels []string `json:"labels"`
	Scores []int    `json:"scores"`
}

// QuizSummary is a quiz with activity counters for administrative views.
type QuizSummary struct {
	Quiz      Quiz `json:"quiz"`
	Players   int  `json:"players"`
	Questions int  `json:"questions"`
	Answers   int  `json:"answers"`
	Completed int  `json:"completed"`
}

// AdminQuizzes groups summaries for one quiz administrator.
type AdminQuizzes struct {
	AdminName string        `json:"adminName"`
	Active    []QuizSummary `json:"active"`
	Archived  []QuizSummary `json:"archived"`
}
