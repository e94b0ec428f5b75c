package app

import "proquiz-service/internal/domain"

// applyAnswer adds one base point for a correct answer.
func applyAnswer(score domain.Score, correct bool) domain.Score {
	if correct {
		score.Base++
	}
	return score
}

// adjustBase shifts the base score by delta, never below zero. The bonus
// flag is kept.
func adjustBase(score domain.Score, delta int) domain.Score {
	score.Base += delta
	if score.Base < 0 {
		score.Base = 0
	}
	return score
}

// answeredAll reports whether the latest answer to every question in order
// is non-empty.
func answeredAll(order []int64, answers []domain.PlayerAnswer) bool {
	if len(order) == 0 {
		return false
	}
	latest := latestAnswers(answers)
	for _, id := range order {
		a, ok := latest[id]
		if !ok || a.Answer == "" {
			return false
		}
	}
	return true
}

func latestAnswers(answers []domain.PlayerAnswer) map[int64]domain.PlayerAnswer {
	latest := make(map[int64]domain.PlayerAnswer, len(answers))
	for _, a := range answers {
		latest[a.QuestionID] = a
	}
	return latest
}

// bonusClaimed reports whether any other player of the quiz holds the bonus.
func bonusClaimed(players []domain.Player, except int64) bool {
	for _, p := range players {
		if p.ID != except && p.Score.Bonus {
			return true
		}
	}
	return false
}
