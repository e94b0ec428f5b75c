package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"proquiz-service/internal/app"
	"proquiz-service/internal/domain"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store implements app.Store on Postgres. Each operation runs in one
// read-committed transaction; concurrent writers to a quiz serialize on
// the quiz row lock.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(tx app.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadQuestions serves the question cache on a miss.
func (s *Store) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)`, quizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return nil, domain.ErrQuizNotFound
	}
	return listQuestions(ctx, s.pool, quizID)
}

type pgTx struct {
	q querier
}

const quizColumns = `id, title, description, admin_name, status, is_archived, created_at, ended_at`

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		q      domain.Quiz
		status string
	)
	if err := row.Scan(&q.ID, &q.Title, &q.Description, &q.AdminName, &status, &q.IsArchived, &q.CreatedAt, &q.EndedAt); err != nil {
		return domain.Quiz{}, err
	}
	q.Status = domain.QuizStatus(status)
	return q, nil
}

func (t *pgTx) CreateQuiz(ctx context.Context, quiz *domain.Quiz, questions []domain.Question) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO quizzes (title, description, admin_name, status, is_archived, created_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		quiz.Title, quiz.Description, quiz.AdminName, string(quiz.Status), quiz.IsArchived, quiz.CreatedAt, quiz.EndedAt,
	).Scan(&quiz.ID)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	for i := range questions {
		q := &questions[i]
		q.QuizID = quiz.ID
		options := q.Options
		if options == nil {
			options = []string{}
		}
		err := t.q.QueryRow(ctx,
			`INSERT INTO questions (quiz_id, position, text, kind, options, correct_answer)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			q.QuizID, q.Position, q.Text, string(q.Kind), options, q.CorrectAnswer,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}

func (t *pgTx) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	q, err := scanQuiz(t.q.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, quizID))
	return q, notFound(err, domain.ErrQuizNotFound, "get quiz")
}

func (t *pgTx) LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	q, err := scanQuiz(t.q.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1 FOR UPDATE`, quizID))
	return q, notFound(err, domain.ErrQuizNotFound, "lock quiz")
}

func (t *pgTx) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := t.q.Query(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quiz, 0)
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE quizzes SET title = $2, description = $3, admin_name = $4, status = $5, is_archived = $6, ended_at = $7
		 WHERE id = $1`,
		quiz.ID, quiz.Title, quiz.Description, quiz.AdminName, string(quiz.Status), quiz.IsArchived, quiz.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (t *pgTx) DeleteQuiz(ctx context.Context, quizID int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (t *pgTx) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	return listQuestions(ctx, t.q, quizID)
}

func listQuestions(ctx context.Context, q querier, quizID int64) ([]domain.Question, error) {
	rows, err := q.Query(ctx,
		`SELECT id, quiz_id, position, text, kind, options, correct_answer
		 FROM questions WHERE quiz_id = $1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		var (
			qq   domain.Question
			kind string
		)
		if err := rows.Scan(&qq.ID, &qq.QuizID, &qq.Position, &qq.Text, &kind, &qq.Options, &qq.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		qq.Kind = domain.QuestionKind(kind)
		out = append(out, qq)
	}
	return out, rows.Err()
}

func (t *pgTx) QuestionCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := t.q.Query(ctx, `SELECT quiz_id, COUNT(*) FROM questions GROUP BY quiz_id`)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var (
			id int64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan question count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

const playerColumns = `id, quiz_id, username, score_base, score_bonus, joined_at`

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.QuizID, &p.Username, &p.Score.Base, &p.Score.Bonus, &p.JoinedAt)
	return p, err
}

func (t *pgTx) CreatePlayer(ctx context.Context, player *domain.Player) error {
	if player.JoinedAt.IsZero() {
		player.JoinedAt = time.Now()
	}
	err := t.q.QueryRow(ctx,
		`INSERT INTO players (quiz_id, username, score_base, score_bonus, joined_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		player.QuizID, player.Username, player.Score.Base, player.Score.Bonus, player.JoinedAt,
	).Scan(&player.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return domain.ErrUsernameTaken
		case codeForeignKeyViolation:
			return domain.ErrQuizNotFound
		}
	}
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (t *pgTx) GetPlayer(ctx context.Context, playerID int64) (domain.Player, error) {
	p, err := scanPlayer(t.q.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
	return p, notFound(err, domain.ErrPlayerNotFound, "get player")
}

func (t *pgTx) ListPlayers(ctx context.Context, quizID int64) ([]domain.Player, error) {
	return t.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE quiz_id = $1 ORDER BY id`, quizID)
}

func (t *pgTx) ListAllPlayers(ctx context.Context) ([]domain.Player, error) {
	return t.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players ORDER BY id`)
}

func (t *pgTx) queryPlayers(ctx context.Context, sql string, args ...interface{}) ([]domain.Player, error) {
	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdatePlayerScore(ctx context.Context, playerID int64, score domain.Score) error {
	tag, err := t.q.Exec(ctx, `UPDATE players SET score_base = $2, score_bonus = $3 WHERE id = $1`, playerID, score.Base, score.Bonus)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (t *pgTx) DeletePlayer(ctx context.Context, playerID int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM players WHERE id = $1`, playerID)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

const progressColumns = `player_id, quiz_id, question_order, current_index, completed, completion_time`

func scanProgress(row pgx.Row) (domain.PlayerProgress, error) {
	var p domain.PlayerProgress
	err := row.Scan(&p.PlayerID, &p.QuizID, &p.Order, &p.CurrentIndex, &p.Completed, &p.CompletionTime)
	return p, err
}

func (t *pgTx) CreateProgress(ctx context.Context, progress domain.PlayerProgress) (bool, error) {
	order := progress.Order
	if order == nil {
		order = []int64{}
	}
	tag, err := t.q.Exec(ctx,
		`INSERT INTO player_progress (player_id, quiz_id, question_order, current_index, completed, completion_time)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (player_id, quiz_id) DO NOTHING`,
		progress.PlayerID, progress.QuizID, order, progress.CurrentIndex, progress.Completed, progress.CompletionTime,
	)
	if err != nil {
		return false, fmt.Errorf("insert progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) GetProgress(ctx context.Context, playerID, quizID int64) (domain.PlayerProgress, error) {
	p, err := scanProgress(t.q.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM player_progress WHERE player_id = $1 AND quiz_id = $2`, playerID, quizID))
	return p, notFound(err, domain.ErrProgressNotFound, "get progress")
}

func (t *pgTx) UpdateProgress(ctx context.Context, progress domain.PlayerProgress) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE player_progress SET current_index = $3, completed = $4, completion_time = $5
		 WHERE player_id = $1 AND quiz_id = $2`,
		progress.PlayerID, progress.QuizID, progress.CurrentIndex, progress.Completed, progress.CompletionTime,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProgressNotFound
	}
	return nil
}

func (t *pgTx) ListProgress(ctx context.Context, quizID int64) ([]domain.PlayerProgress, error) {
	rows, err := t.q.Query(ctx, `SELECT `+progressColumns+` FROM player_progress WHERE quiz_id = $1 ORDER BY player_id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PlayerProgress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) AddAnswer(ctx context.Context, answer *domain.PlayerAnswer) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO player_answers (player_id, question_id, answer, is_correct, submitted_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		answer.PlayerID, answer.QuestionID, answer.Answer, answer.Correct, answer.SubmittedAt,
	).Scan(&answer.ID)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (t *pgTx) ListAnswers(ctx context.Context, playerID int64) ([]domain.PlayerAnswer, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, player_id, question_id, answer, is_correct, submitted_at
		 FROM player_answers WHERE player_id = $1 ORDER BY id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PlayerAnswer, 0)
	for rows.Next() {
		var a domain.PlayerAnswer
		if err := rows.Scan(&a.ID, &a.PlayerID, &a.QuestionID, &a.Answer, &a.Correct, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) CountAnswers(ctx context.Context, quizID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM player_answers a JOIN players p ON p.id = a.player_id WHERE p.quiz_id = $1`, quizID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

// PurgeParticipants relies on ON DELETE CASCADE for answers and progress.
func (t *pgTx) PurgeParticipants(ctx context.Context, quizID int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM players WHERE quiz_id = $1`, quizID); err != nil {
		return fmt.Errorf("purge players: %w", err)
	}
	return nil
}

func (t *pgTx) ResetScores(ctx context.Context, quizID int64) error {
	if _, err := t.q.Exec(ctx, `UPDATE players SET score_base = 0, score_bonus = FALSE WHERE quiz_id = $1`, quizID); err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	if _, err := t.q.Exec(ctx,
		`UPDATE player_progress SET current_index = 0, completed = FALSE, completion_time = NULL WHERE quiz_id = $1`, quizID); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}

func (t *pgTx) ResetAllScores(ctx context.Context) error {
	if _, err := t.q.Exec(ctx, `UPDATE players SET score_base = 0, score_bonus = FALSE`); err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	if _, err := t.q.Exec(ctx, `UPDATE player_progress SET current_index = 0, completed = FALSE, completion_time = NULL`); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}

// notFound maps pgx.ErrNoRows to sentinel and wraps anything else.
func notFound(err, sentinel error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return sentinel
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
