package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"proquiz-service/internal/domain"
)

const maxUsernameLen = 50

// Service contains the player-facing quiz use cases.
type Service struct {
	store     Store
	questions QuestionSource
	notifier  Notifier
	sequencer Sequencer
	now       func() time.Time
	log       zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithSequencer(seq Sequencer) Option { return func(s *Service) { s.sequencer = seq } }

// WithClock is meant for tests that need deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log.With().Str("component", "quiz_service").Logger() }
}

func NewService(store Store, questions QuestionSource, opts ...Option) *Service {
	s := &Service{
		store:     store,
		questions: questions,
		notifier:  nopNotifier{},
		sequencer: NewRandomSequencer(),
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admin returns the administrative operations when the caller is privileged.
func (s *Service) Admin(privileged bool) (*AdminService, error) {
	if !privileged {
		return nil, domain.ErrForbidden
	}
	return &AdminService{svc: s}, nil
}

// Status returns the quiz with its current lifecycle state.
func (s *Service) Status(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		quiz, err = tx.GetQuiz(ctx, quizID)
		return err
	})
	return quiz, err
}

// Join registers username in the quiz and freezes a fresh question order
// for the new player.
func (s *Service) Join(ctx context.Context, quizID int64, username string) (domain.Player, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Player{}, domain.NewValidationError("username", "is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return domain.Player{}, domain.NewValidationError("username", fmt.Sprintf("must be at most %d characters", maxUsernameLen))
	}

	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return domain.Player{}, err
	}
	order := s.sequencer.Sequence(questionIDs(questions))

	var player domain.Player
	err = s.store.InTx(ctx, func(tx Tx) error {
		quiz, err := tx.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := requireJoinable(quiz); err != nil {
			return err
		}
		player = domain.Player{QuizID: quizID, Username: username, JoinedAt: s.now()}
		if err := tx.CreatePlayer(ctx, &player); err != nil {
			return err
		}
		_, err = tx.CreateProgress(ctx, newProgress(player.ID, quizID, order))
		return err
	})
	if err != nil {
		return domain.Player{}, err
	}

	s.log.Info().Int64("quiz_id", quizID).Int64("player_id", player.ID).Str("username", username).Msg("player joined")
	s.announce(ctx, quizID, false)
	return player, nil
}

// CurrentQuestion returns the question at the player's cursor, or a
// completed turn once the player has gone through every question.
func (s *Service) CurrentQuestion(ctx context.Context, quizID, playerID int64) (domain.Turn, error) {
	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return domain.Turn{}, err
	}
	byID := indexQuestions(questions)

	var (
		turn    domain.Turn
		awarded bool
		changed bool
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		quiz, err := tx.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := requireLive(quiz); err != nil {
			return err
		}
		player, err := s.playerOf(ctx, tx, quizID, playerID)
		if err != nil {
			return err
		}

		progress, err := tx.GetProgress(ctx, playerID, quizID)
		if errors.Is(err, domain.ErrProgressNotFound) {
			progress, err = s.recoverProgress(ctx, tx, playerID, quizID, questions)
		}
		if err != nil {
			return err
		}

		turn = domain.Turn{Index: progress.CurrentIndex, Total: len(progress.Order)}
		if progress.Completed {
			turn.Completed = true
			return nil
		}
		if id, ok := currentQuestionID(progress); ok {
			q, ok := byID[id]
			if !ok {
				return domain.ErrQuestionNotFound
			}
			turn.Question = &q
			return nil
		}

		// Cursor ran past the end without a recorded completion.
		if _, err := tx.LockQuiz(ctx, quizID); err != nil {
			return err
		}
		awarded, err = s.finish(ctx, tx, quiz, &player, &progress)
		if err != nil {
			return err
		}
		if err := tx.UpdateProgress(ctx, progress); err != nil {
			return err
		}
		if awarded {
			if err := tx.UpdatePlayerScore(ctx, player.ID, player.Score); err != nil {
				return err
			}
		}
		changed = true
		turn.Completed = true
		return nil
	})
	if err != nil {
		return domain.Turn{}, err
	}
	if changed {
		s.logCompletion(quizID, playerID, awarded)
		s.announce(ctx, quizID, false)
	}
	return turn, nil
}

// recoverProgress creates a missing progress row with a fresh shuffle.
// When a concurrent request created it first, that row wins.
func (s *Service) recoverProgress(ctx context.Context, tx Tx, playerID, quizID int64, questions []domain.Question) (domain.PlayerProgress, error) {
	progress := newProgress(playerID, quizID, s.sequencer.Sequence(questionIDs(questions)))
	created, err := tx.CreateProgress(ctx, progress)
	if err != nil {
		return domain.PlayerProgress{}, err
	}
	if created {
		s.log.Warn().Int64("quiz_id", quizID).Int64("player_id", playerID).Msg("progress recreated")
		return progress, nil
	}
	return tx.GetProgress(ctx, playerID, quizID)
}

// SubmitAnswer records the answer to the question at the player's cursor,
// scores it, advances the cursor and completes the player after the last
// question. Any other question id fails with SequenceMismatch and changes
// nothing.
func (s *Service) SubmitAnswer(ctx context.Context, quizID, playerID, questionID int64, raw string) (domain.AnswerResult, error) {
	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	byID := indexQuestions(questions)

	var result domain.AnswerResult
	err = s.store.InTx(ctx, func(tx Tx) error {
		quiz, err := tx.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := requireLive(quiz); err != nil {
			return err
		}
		player, err := s.playerOf(ctx, tx, quizID, playerID)
		if err != nil {
			return err
		}
		progress, err := tx.GetProgress(ctx, playerID, quizID)
		if errors.Is(err, domain.ErrProgressNotFound) {
			return fmt.Errorf("%w: no question served yet", domain.ErrSequenceMismatch)
		}
		if err != nil {
			return err
		}
		if err := checkSequence(progress, questionID); err != nil {
			return err
		}
		q, ok := byID[questionID]
		if !ok {
			return domain.ErrQuestionNotFound
		}

		correct := Evaluate(q, raw)
		answer := domain.PlayerAnswer{
			PlayerID:    playerID,
			QuestionID:  questionID,
			Answer:      Normalize(raw),
			Correct:     correct,
			SubmittedAt: s.now(),
		}
		if err := tx.AddAnswer(ctx, &answer); err != nil {
			return err
		}

		player.Score = applyAnswer(player.Score, correct)
		progress = advance(progress)

		result = domain.AnswerResult{
			QuestionID:    questionID,
			Correct:       correct,
			CorrectAnswer: q.CorrectAnswer,
		}
		if exhausted(progress) {
			awarded, err := s.finish(ctx, tx, quiz, &player, &progress)
			if err != nil {
				return err
			}
			result.Completed = true
			result.BonusAwarded = awarded
		}
		if err := tx.UpdateProgress(ctx, progress); err != nil {
			return err
		}
		if err := tx.UpdatePlayerScore(ctx, player.ID, player.Score); err != nil {
			return err
		}
		result.Score = player.Score
		return nil
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}

	s.log.Debug().Int64("quiz_id", quizID).Int64("player_id", playerID).Int64("question_id", questionID).Bool("correct", result.Correct).Msg("answer recorded")
	if result.Completed {
		s.logCompletion(quizID, playerID, result.BonusAwarded)
	}
	s.announce(ctx, quizID, false)
	return result, nil
}

// finish marks the player completed and grants the first-finisher bonus
// when no one else holds it and every question got a non-empty answer.
// The caller must hold the quiz lock.
func (s *Service) finish(ctx context.Context, tx Tx, quiz domain.Quiz, player *domain.Player, progress *domain.PlayerProgress) (bool, error) {
	*progress = markCompleted(*progress, s.now())
	if player.Score.Bonus || player.Username == quiz.AdminName {
		return false, nil
	}
	answers, err := tx.ListAnswers(ctx, player.ID)
	if err != nil {
		return false, err
	}
	if !answeredAll(progress.Order, answers) {
		return false, nil
	}
	players, err := tx.ListPlayers(ctx, quiz.ID)
	if err != nil {
		return false, err
	}
	if bonusClaimed(players, player.ID) {
		return false, nil
	}
	player.Score.Bonus = true
	return true, nil
}

func (s *Service) logCompletion(quizID, playerID int64, awarded bool) {
	s.log.Info().Int64("quiz_id", quizID).Int64("player_id", playerID).Bool("bonus", awarded).Msg("player completed quiz")
}

// Results is the post-quiz view for a player. It is available once the
// quiz has ended, or earlier to a player who has completed.
func (s *Service) Results(ctx context.Context, quizID, playerID int64) (domain.Results, error) {
	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return domain.Results{}, err
	}

	var res domain.Results
	err = s.store.InTx(ctx, func(tx Tx) error {
		quiz, err := tx.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		player, err := s.playerOf(ctx, tx, quizID, playerID)
		if err != nil {
			return err
		}
		if quiz.Status != domain.StatusEnded {
			progress, err := tx.GetProgress(ctx, playerID, quizID)
			if errors.Is(err, domain.ErrProgressNotFound) || (err == nil && !progress.Completed) {
				return domain.ErrResultsNotVisible
			}
			if err != nil {
				return err
			}
		}

		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		answers, err := tx.ListAnswers(ctx, playerID)
		if err != nil {
			return err
		}

		res = domain.Results{
			Quiz:    quiz,
			Ranking: RankQuiz(quiz, snap.quizPlayers(quizID)),
			Overall: RankOverall(snap.quizzes, snap.counts, snap.players),
			Player:  &player,
			Answers: reviewAnswers(questions, answers),
		}
		for _, e := range res.Ranking {
			if e.PlayerID == playerID {
				res.Rank = e.Rank
			}
		}
		delta := DeltaFor(player.Username, quiz, snap.quizzes, snap.counts, snap.players)
		res.Delta = &delta
		return nil
	})
	return res, err
}

// Standings returns the live per-quiz leaderboard.
func (s *Service) Standings(ctx context.Context, quizID int64) (domain.Standings, error) {
	var out domain.Standings
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = standingsOf(ctx, tx, quizID)
		return err
	})
	return out, err
}

// OverallRanking aggregates every quiz ever run.
func (s *Service) OverallRanking(ctx context.Context) ([]domain.OverallEntry, error) {
	var out []domain.OverallEntry
	err := s.store.InTx(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		out = RankOverall(snap.quizzes, snap.counts, snap.players)
		return nil
	})
	return out, err
}

// RankingDelta compares username's all-time totals before and after quizID.
func (s *Service) RankingDelta(ctx context.Context, quizID int64, username string) (domain.RankingDelta, error) {
	var out domain.RankingDelta
	err := s.store.InTx(ctx, func(tx Tx) error {
		quiz, err := tx.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		out = DeltaFor(username, quiz, snap.quizzes, snap.counts, snap.players)
		return nil
	})
	return out, err
}

// Performance returns leaderboard labels and point totals for charting.
func (s *Service) Performance(ctx context.Context, quizID int64) (domain.Performance, error) {
	standings, err := s.Standings(ctx, quizID)
	if err != nil {
		return domain.Performance{}, err
	}
	perf := domain.Performance{
		Labels: make([]string, 0, len(standings.Entries)),
		Scores: make([]int, 0, len(standings.Entries)),
	}
	for _, e := range standings.Entries {
		perf.Labels = append(perf.Labels, e.Username)
		perf.Scores = append(perf.Scores, e.Total)
	}
	return perf, nil
}

// Watch subscribes to live events of a quiz and returns the current
// standings as the initial snapshot.
func (s *Service) Watch(ctx context.Context, quizID int64) (domain.Standings, <-chan domain.Event, func(), error) {
	ch, cancel, err := s.notifier.Subscribe(ctx, quizID)
	if err != nil {
		return domain.Standings{}, nil, nil, err
	}
	// subscribed before the snapshot so no event falls between the two
	standings, err := s.Standings(ctx, quizID)
	if err != nil {
		cancel()
		return domain.Standings{}, nil, nil, err
	}
	return standings, ch, cancel, nil
}

// announce publishes the committed state of a quiz. Failures are logged and
// never surface to the caller.
func (s *Service) announce(ctx context.Context, quizID int64, withStatus bool) {
	standings, err := s.Standings(ctx, quizID)
	if err != nil {
		s.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("load standings for notification")
		return
	}
	if withStatus {
		s.publish(ctx, domain.Event{Type: domain.EventStatus, QuizID: quizID, Status: standings.Status})
	}
	s.publish(ctx, domain.Event{Type: domain.EventLeaderboard, QuizID: quizID, Status: standings.Status, Standings: &standings})
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int64("quiz_id", ev.QuizID).Str("event", string(ev.Type)).Msg("publish event")
	}
}

func (s *Service) playerOf(ctx context.Context, tx Tx, quizID, playerID int64) (domain.Player, error) {
	player, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return domain.Player{}, err
	}
	if player.QuizID != quizID {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func standingsOf(ctx context.Context, tx Tx, quizID int64) (domain.Standings, error) {
	quiz, err := tx.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Standings{}, err
	}
	players, err := tx.ListPlayers(ctx, quizID)
	if err != nil {
		return domain.Standings{}, err
	}
	return domain.Standings{QuizID: quizID, Status: quiz.Status, Entries: RankQuiz(quiz, players)}, nil
}

// snapshot is everything the all-time aggregations read.
type snapshot struct {
	quizzes []domain.Quiz
	counts  map[int64]int
	players []domain.Player
}

func loadSnapshot(ctx context.Context, tx Tx) (snapshot, error) {
	quizzes, err := tx.ListQuizzes(ctx)
	if err != nil {
		return snapshot{}, err
	}
	counts, err := tx.QuestionCounts(ctx)
	if err != nil {
		return snapshot{}, err
	}
	players, err := tx.ListAllPlayers(ctx)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{quizzes: quizzes, counts: counts, players: players}, nil
}

func (s snapshot) quizPlayers(quizID int64) []domain.Player {
	var out []domain.Player
	for _, p := range s.players {
		if p.QuizID == quizID {
			out = append(out, p)
		}
	}
	return out
}

func reviewAnswers(questions []domain.Question, answers []domain.PlayerAnswer) []domain.AnswerReview {
	latest := latestAnswers(answers)
	out := make([]domain.AnswerReview, 0, len(questions))
	for _, q := range questions {
		a, ok := latest[q.ID]
		out = append(out, domain.AnswerReview{
			Question: q,
			Answer:   a.Answer,
			Answered: ok,
			Correct:  a.Correct,
		})
	}
	return out
}

func questionIDs(questions []domain.Question) []int64 {
	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func indexQuestions(questions []domain.Question) map[int64]domain.Question {
	out := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		out[q.ID] = q
	}
	return out
}
