package app

import (
	"sort"

	"proquiz-service/internal/domain"
)

// RankQuiz orders the quiz players by points, highest first. The quiz
// administrator is left out and ties keep their input order.
func RankQuiz(quiz domain.Quiz, players []domain.Player) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(players))
	for _, p := range players {
		if p.QuizID != quiz.ID || p.Username == quiz.AdminName {
			continue
		}
		entries = append(entries, domain.RankingEntry{
			PlayerID: p.ID,
			Username: p.Username,
			Score:    p.Score,
			Total:    p.Score.Points(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total > entries[j].Total
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

type tally struct {
	score   int
	quizzes int
	bonuses int
}

func (t tally) total() int { return t.score + t.bonuses }

// contribution is what one quiz adds to a participant's all-time tally.
// Administrators are credited a perfect score plus the bonus.
func contribution(quiz domain.Quiz, questionCount int, byName map[string]domain.Player, username string) (tally, bool) {
	if quiz.AdminName == username {
		return tally{score: questionCount, quizzes: 1, bonuses: 1}, true
	}
	p, ok := byName[username]
	if !ok {
		return tally{}, false
	}
	t := tally{score: p.Score.Base, quizzes: 1}
	if p.Score.Bonus {
		t.bonuses = 1
	}
	return t, true
}

func playersByQuiz(players []domain.Player) map[int64]map[string]domain.Player {
	out := make(map[int64]map[string]domain.Player)
	for _, p := range players {
		m, ok := out[p.QuizID]
		if !ok {
			m = make(map[string]domain.Player)
			out[p.QuizID] = m
		}
		m[p.Username] = p
	}
	return out
}

// RankOverall aggregates every participant name across all quizzes and
// orders by total points, then participations, then bonuses.
func RankOverall(quizzes []domain.Quiz, questionCounts map[int64]int, players []domain.Player) []domain.OverallEntry {
	grouped := playersByQuiz(players)
	tallies := make(map[string]tally)
	var names []string
	add := func(name string, t tally) {
		cur, ok := tallies[name]
		if !ok {
			names = append(names, name)
		}
		cur.score += t.score
		cur.quizzes += t.quizzes
		cur.bonuses += t.bonuses
		tallies[name] = cur
	}

	for _, q := range sortedQuizzes(quizzes) {
		add(q.AdminName, tally{score: questionCounts[q.ID], quizzes: 1, bonuses: 1})
		for _, p := range players {
			if p.QuizID != q.ID || p.Username == q.AdminName {
				continue
			}
			t, _ := contribution(q, 0, grouped[q.ID], p.Username)
			add(p.Username, t)
		}
	}

	entries := make([]domain.OverallEntry, 0, len(names))
	for _, name := range names {
		t := tallies[name]
		entries = append(entries, domain.OverallEntry{
			Username:    name,
			QuizScore:   t.score,
			Quizzes:     t.quizzes,
			Bonuses:     t.bonuses,
			TotalPoints: t.total(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.Quizzes != b.Quizzes {
			return a.Quizzes > b.Quizzes
		}
		return a.Bonuses > b.Bonuses
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// DeltaFor compares username's totals over quizzes strictly before target
// with the totals including target.
func DeltaFor(username string, target domain.Quiz, quizzes []domain.Quiz, questionCounts map[int64]int, players []domain.Player) domain.RankingDelta {
	grouped := playersByQuiz(players)
	var prev tally
	for _, q := range quizzes {
		if !createdBefore(q, target) {
			continue
		}
		if t, ok := contribution(q, questionCounts[q.ID], grouped[q.ID], username); ok {
			prev.score += t.score
			prev.quizzes += t.quizzes
			prev.bonuses += t.bonuses
		}
	}
	cur, _ := contribution(target, questionCounts[target.ID], grouped[target.ID], username)
	gained := cur.total()
	return domain.RankingDelta{
		Username:        username,
		PreviousTotal:   prev.total(),
		PointsGained:    gained,
		NewTotal:        prev.total() + gained,
		PreviousQuizzes: prev.quizzes,
		PreviousBonuses: prev.bonuses,
		BonusGained:     cur.bonuses,
	}
}

func createdBefore(a, b domain.Quiz) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortedQuizzes(quizzes []domain.Quiz) []domain.Quiz {
	out := make([]domain.Quiz, len(quizzes))
	copy(out, quizzes)
	sort.SliceStable(out, func(i, j int) bool { return createdBefore(out[i], out[j]) })
	return out
}
