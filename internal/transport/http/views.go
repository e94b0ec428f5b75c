package http

import (
	"fmt"

	"proquiz-service/internal/domain"
)

// scoreLabel renders a score the way leaderboards show it, marking the
// first-finisher bonus.
func scoreLabel(s domain.Score) string {
	if s.Bonus {
		return fmt.Sprintf("%d+1⚡", s.Base)
	}
	return fmt.Sprintf("%d", s.Base)
}

type entryView struct {
	domain.RankingEntry
	Display string `json:"display"`
}

type standingsView struct {
	QuizID  int64             `json:"quizId"`
	Status  domain.QuizStatus `json:"status"`
	Entries []entryView       `json:"entries"`
}

func newStandingsView(s domain.Standings) standingsView {
	return standingsView{QuizID: s.QuizID, Status: s.Status, Entries: entryViews(s.Entries)}
}

func entryViews(entries []domain.RankingEntry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{RankingEntry: e, Display: scoreLabel(e.Score)})
	}
	return out
}

// questionView is a question as served to players: no correct answer.
type questionView struct {
	ID      int64               `json:"id"`
	Text    string              `json:"text"`
	Kind    domain.QuestionKind `json:"kind"`
	Options []string            `json:"options,omitempty"`
}

type turnView struct {
	Question  *questionView `json:"question,omitempty"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	Completed bool          `json:"completed"`
}

func newTurnView(t domain.Turn) turnView {
	v := turnView{Index: t.Index, Total: t.Total, Completed: t.Completed}
	if t.Question != nil {
		v.Question = &questionView{
			ID:      t.Question.ID,
			Text:    t.Question.Text,
			Kind:    t.Question.Kind,
			Options: t.Question.Options,
		}
	}
	return v
}

type answerView struct {
	domain.AnswerResult
	Display string `json:"display"`
}

type playerView struct {
	domain.Player
	Display string `json:"display"`
}

func newPlayerView(p domain.Player) playerView {
	return playerView{Player: p, Display: scoreLabel(p.Score)}
}

type resultsView struct {
	domain.Results
	Ranking []entryView `json:"ranking"`
}

func newResultsView(res domain.Results) resultsView {
	return resultsView{Results: res, Ranking: entryViews(res.Ranking)}
}
