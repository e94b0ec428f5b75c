package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"proquiz-service/internal/domain"
)

// AdminService holds operations reserved for privileged callers. Obtain it
// through Service.Admin.
type AdminService struct {
	svc *Service
}

// ImportQuiz validates an imported question set and stores it as a new
// not_started quiz. Choice answers given as a letter are resolved to the
// option text.
func (a *AdminService) ImportQuiz(ctx context.Context, imp domain.QuizImport) (domain.Quiz, []domain.Question, error) {
	quiz := domain.Quiz{
		Title:       strings.TrimSpace(imp.Title),
		Description: strings.TrimSpace(imp.Description),
		AdminName:   strings.TrimSpace(imp.AdminName),
		Status:      domain.StatusNotStarted,
	}
	fields := map[string]string{}
	if quiz.Title == "" {
		fields["title"] = "is required"
	}
	if quiz.AdminName == "" {
		fields["admin_name"] = "is required"
	}
	if len(imp.Questions) == 0 {
		fields["questions"] = "at least one question is required"
	}

	questions := make([]domain.Question, 0, len(imp.Questions))
	for i, d := range imp.Questions {
		q, msg := buildQuestion(d, i)
		if msg != "" {
			fields[fmt.Sprintf("questions[%d]", i)] = msg
			continue
		}
		questions = append(questions, q)
	}
	if len(fields) > 0 {
		return domain.Quiz{}, nil, &domain.ValidationError{Fields: fields}
	}

	quiz.CreatedAt = a.svc.now()
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		return tx.CreateQuiz(ctx, &quiz, questions)
	})
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	for i := range questions {
		questions[i].QuizID = quiz.ID
	}
	a.svc.log.Info().Int64("quiz_id", quiz.ID).Str("title", quiz.Title).Int("questions", len(questions)).Int("skipped", imp.Skipped).Msg("quiz imported")
	return quiz, questions, nil
}

func buildQuestion(d domain.QuestionDraft, position int) (domain.Question, string) {
	q := domain.Question{
		Position:      position,
		Text:          strings.TrimSpace(d.Text),
		Kind:          d.Kind,
		CorrectAnswer: strings.TrimSpace(d.CorrectAnswer),
	}
	if q.Text == "" {
		return q, "question text is required"
	}
	if q.CorrectAnswer == "" {
		return q, "correct answer is required"
	}
	switch d.Kind {
	case domain.KindFreeText:
		return q, ""
	case domain.KindChoice:
		for _, opt := range d.Options {
			if opt = strings.TrimSpace(opt); opt != "" {
				q.Options = append(q.Options, opt)
			}
		}
		if len(q.Options) == 0 {
			return q, "choice question needs options"
		}
		correct, ok := resolveChoice(q.Options, q.CorrectAnswer)
		if !ok {
			return q, "correct answer does not match any option"
		}
		q.CorrectAnswer = correct
		return q, ""
	default:
		return q, fmt.Sprintf("unsupported kind %q", d.Kind)
	}
}

// resolveChoice finds the option named by correct, either by text or by
// letter label.
func resolveChoice(options []string, correct string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(opt, correct) {
			return opt, true
		}
	}
	if idx, ok := letterIndex(Normalize(correct)); ok && idx < len(options) {
		return options[idx], true
	}
	return "", false
}

func (a *AdminService) Start(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return a.transition(ctx, quizID, ActionStart)
}

// End stops the quiz; it is legal before the quiz was started.
func (a *AdminService) End(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return a.transition(ctx, quizID, ActionEnd)
}

func (a *AdminService) Archive(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return a.transition(ctx, quizID, ActionArchive)
}

func (a *AdminService) transition(ctx context.Context, quizID int64, action LifecycleAction) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		quiz, err = Transition(current, action, a.svc.now())
		if err != nil {
			return err
		}
		return tx.UpdateQuiz(ctx, quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	a.svc.log.Info().Int64("quiz_id", quizID).Str("action", string(action)).Str("status", string(quiz.Status)).Bool("archived", quiz.IsArchived).Msg("quiz lifecycle changed")
	a.svc.announce(ctx, quizID, true)
	return quiz, nil
}

// ReOffer purges every participant of the quiz and returns it to
// not_started, unarchived.
func (a *AdminService) ReOffer(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := tx.PurgeParticipants(ctx, quizID); err != nil {
			return err
		}
		quiz = Reoffer(current)
		return tx.UpdateQuiz(ctx, quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	a.svc.log.Info().Int64("quiz_id", quizID).Msg("quiz re-offered")
	a.svc.announce(ctx, quizID, true)
	return quiz, nil
}

// ResetSession returns the quiz to not_started and zeroes its players'
// scores and progress. Players stay registered.
func (a *AdminService) ResetSession(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := tx.ResetScores(ctx, quizID); err != nil {
			return err
		}
		quiz = current
		quiz.Status = domain.StatusNotStarted
		quiz.EndedAt = nil
		quiz.IsArchived = false
		return tx.UpdateQuiz(ctx, quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	a.svc.log.Info().Int64("quiz_id", quizID).Msg("quiz session reset")
	a.svc.announce(ctx, quizID, true)
	return quiz, nil
}

// ResetRankings zeroes every score and rewinds every progress row across
// all quizzes. Lifecycle states are left alone.
func (a *AdminService) ResetRankings(ctx context.Context) error {
	var ids []int64
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		quizzes, err := tx.ListQuizzes(ctx)
		if err != nil {
			return err
		}
		for _, q := range quizzes {
			if _, err := tx.LockQuiz(ctx, q.ID); err != nil {
				return err
			}
			ids = append(ids, q.ID)
		}
		return tx.ResetAllScores(ctx)
	})
	if err != nil {
		return err
	}
	a.svc.log.Info().Int("quizzes", len(ids)).Msg("rankings reset")
	for _, id := range ids {
		a.svc.announce(ctx, id, false)
	}
	return nil
}

// DeleteQuiz removes the quiz and everything attached to it.
func (a *AdminService) DeleteQuiz(ctx context.Context, quizID int64) error {
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockQuiz(ctx, quizID); err != nil {
			return err
		}
		return tx.DeleteQuiz(ctx, quizID)
	})
	if err != nil {
		return err
	}
	if err := a.svc.questions.Forget(ctx, quizID); err != nil {
		a.svc.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("drop cached questions")
	}
	a.svc.log.Info().Int64("quiz_id", quizID).Msg("quiz deleted")
	a.svc.publish(ctx, domain.Event{Type: domain.EventDeleted, QuizID: quizID})
	return nil
}

// AdjustScore shifts a player's base score by delta. The result never
// drops below zero and the bonus flag is kept.
func (a *AdminService) AdjustScore(ctx context.Context, quizID, playerID int64, delta int, reason string) (domain.Player, error) {
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "manual adjustment by admin"
	}
	var player domain.Player
	var before domain.Score
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockQuiz(ctx, quizID); err != nil {
			return err
		}
		var err error
		player, err = a.svc.playerOf(ctx, tx, quizID, playerID)
		if err != nil {
			return err
		}
		before = player.Score
		player.Score = adjustBase(player.Score, delta)
		return tx.UpdatePlayerScore(ctx, playerID, player.Score)
	})
	if err != nil {
		return domain.Player{}, err
	}
	a.svc.log.Info().Int64("quiz_id", quizID).Int64("player_id", playerID).Int("delta", delta).
		Int("before", before.Base).Int("after", player.Score.Base).Str("reason", reason).Msg("score adjusted")
	a.svc.announce(ctx, quizID, false)
	return player, nil
}

// DeletePlayer removes one player with their answers and progress.
func (a *AdminService) DeletePlayer(ctx context.Context, quizID, playerID int64) error {
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockQuiz(ctx, quizID); err != nil {
			return err
		}
		if _, err := a.svc.playerOf(ctx, tx, quizID, playerID); err != nil {
			return err
		}
		return tx.DeletePlayer(ctx, playerID)
	})
	if err != nil {
		return err
	}
	a.svc.log.Info().Int64("quiz_id", quizID).Int64("player_id", playerID).Msg("player removed")
	a.svc.announce(ctx, quizID, false)
	return nil
}

// Results is the administrator's view of a quiz in any state.
func (a *AdminService) Results(ctx context.Context, quizID int64) (domain.Results, error) {
	var res domain.Results
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		quiz, err := tx.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		res = domain.Results{
			Quiz:       quiz,
			Ranking:    RankQuiz(quiz, snap.quizPlayers(quizID)),
			Overall:    RankOverall(snap.quizzes, snap.counts, snap.players),
			AdminScore: snap.counts[quizID],
		}
		return nil
	})
	return res, err
}

// Dashboard groups every quiz by administrator into active and archived.
func (a *AdminService) Dashboard(ctx context.Context) ([]domain.AdminQuizzes, error) {
	summaries, err := a.summaries(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]*domain.AdminQuizzes)
	var names []string
	for _, s := range summaries {
		g, ok := groups[s.Quiz.AdminName]
		if !ok {
			g = &domain.AdminQuizzes{AdminName: s.Quiz.AdminName, Active: []domain.QuizSummary{}, Archived: []domain.QuizSummary{}}
			groups[s.Quiz.AdminName] = g
			names = append(names, s.Quiz.AdminName)
		}
		if s.Quiz.IsArchived {
			g.Archived = append(g.Archived, s)
		} else {
			g.Active = append(g.Active, s)
		}
	}
	sort.Strings(names)
	out := make([]domain.AdminQuizzes, 0, len(names))
	for _, n := range names {
		out = append(out, *groups[n])
	}
	return out, nil
}

// Archived lists archived quizzes, most recently ended first.
func (a *AdminService) Archived(ctx context.Context) ([]domain.QuizSummary, error) {
	summaries, err := a.summaries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizSummary, 0)
	for _, s := range summaries {
		if s.Quiz.IsArchived {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := out[i].Quiz.EndedAt, out[j].Quiz.EndedAt
		switch {
		case ei == nil:
			return false
		case ej == nil:
			return true
		default:
			return ei.After(*ej)
		}
	})
	return out, nil
}

func (a *AdminService) summaries(ctx context.Context) ([]domain.QuizSummary, error) {
	var out []domain.QuizSummary
	err := a.svc.store.InTx(ctx, func(tx Tx) error {
		quizzes, err := tx.ListQuizzes(ctx)
		if err != nil {
			return err
		}
		counts, err := tx.QuestionCounts(ctx)
		if err != nil {
			return err
		}
		for _, q := range quizzes {
			players, err := tx.ListPlayers(ctx, q.ID)
			if err != nil {
				return err
			}
			progress, err := tx.ListProgress(ctx, q.ID)
			if err != nil {
				return err
			}
			answers, err := tx.CountAnswers(ctx, q.ID)
			if err != nil {
				return err
			}
			completed := 0
			for _, p := range progress {
				if p.Completed {
					completed++
				}
			}
			out = append(out, domain.QuizSummary{
				Quiz:      q,
				Players:   len(players),
				Questions: counts[q.ID],
				Answers:   answers,
				Completed: completed,
			})
		}
		return nil
	})
	return out, err
}
