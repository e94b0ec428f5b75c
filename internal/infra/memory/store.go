package memory

import (
	"context"
	"sort"
	"sync"

	"proquiz-service/internal/app"
	"proquiz-service/internal/domain"
)

// Store is an in-process implementation of app.Store. Transactions are
// serialized and run against a copy of the state that replaces the live
// state only when the callback succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

type progressKey struct {
	playerID int64
	quizID   int64
}

type state struct {
	lastQuizID     int64
	lastQuestionID int64
	lastPlayerID   int64
	lastAnswerID   int64

	quizzes   map[int64]domain.Quiz
	questions map[int64][]domain.Question
	players   map[int64]domain.Player
	progress  map[progressKey]domain.PlayerProgress
	answers   []domain.PlayerAnswer
}

func newState() *state {
	return &state{
		quizzes:   make(map[int64]domain.Quiz),
		questions: make(map[int64][]domain.Question),
		players:   make(map[int64]domain.Player),
		progress:  make(map[progressKey]domain.PlayerProgress),
	}
}

func (s *state) clone() *state {
	out := &state{
		lastQuizID:     s.lastQuizID,
		lastQuestionID: s.lastQuestionID,
		lastPlayerID:   s.lastPlayerID,
		lastAnswerID:   s.lastAnswerID,
		quizzes:        make(map[int64]domain.Quiz, len(s.quizzes)),
		questions:      make(map[int64][]domain.Question, len(s.questions)),
		players:        make(map[int64]domain.Player, len(s.players)),
		progress:       make(map[progressKey]domain.PlayerProgress, len(s.progress)),
		answers:        make([]domain.PlayerAnswer, len(s.answers)),
	}
	for id, q := range s.quizzes {
		out.quizzes[id] = cloneQuiz(q)
	}
	for id, qs := range s.questions {
		out.questions[id] = cloneQuestions(qs)
	}
	for id, p := range s.players {
		out.players[id] = p
	}
	for k, p := range s.progress {
		out.progress[k] = cloneProgress(p)
	}
	copy(out.answers, s.answers)
	return out
}

// InTx runs fn against a private copy of the state.
func (s *Store) InTx(ctx context.Context, fn func(tx app.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// LoadQuestions serves a question cache on a miss.
func (s *Store) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	return cloneQuestions(s.state.questions[quizID]), nil
}

type tx struct {
	st *state
}

func (t *tx) CreateQuiz(_ context.Context, quiz *domain.Quiz, questions []domain.Question) error {
	t.st.lastQuizID++
	quiz.ID = t.st.lastQuizID
	t.st.quizzes[quiz.ID] = cloneQuiz(*quiz)

	stored := make([]domain.Question, 0, len(questions))
	for i := range questions {
		t.st.lastQuestionID++
		questions[i].ID = t.st.lastQuestionID
		questions[i].QuizID = quiz.ID
		stored = append(stored, questions[i])
	}
	t.st.questions[quiz.ID] = cloneQuestions(stored)
	return nil
}

func (t *tx) GetQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	q, ok := t.st.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(q), nil
}

// LockQuiz needs no extra work: transactions already run one at a time.
func (t *tx) LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return t.GetQuiz(ctx, quizID)
}

func (t *tx) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	out := make([]domain.Quiz, 0, len(t.st.quizzes))
	for _, q := range t.st.quizzes {
		out = append(out, cloneQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) UpdateQuiz(_ context.Context, quiz domain.Quiz) error {
	if _, ok := t.st.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	t.st.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (t *tx) DeleteQuiz(ctx context.Context, quizID int64) error {
	if _, ok := t.st.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	if err := t.PurgeParticipants(ctx, quizID); err != nil {
		return err
	}
	delete(t.st.questions, quizID)
	delete(t.st.quizzes, quizID)
	return nil
}

func (t *tx) ListQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	return cloneQuestions(t.st.questions[quizID]), nil
}

func (t *tx) QuestionCounts(_ context.Context) (map[int64]int, error) {
	out := make(map[int64]int, len(t.st.questions))
	for id, qs := range t.st.questions {
		out[id] = len(qs)
	}
	return out, nil
}

func (t *tx) CreatePlayer(_ context.Context, player *domain.Player) error {
	if _, ok := t.st.quizzes[player.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	for _, p := range t.st.players {
		if p.QuizID == player.QuizID && p.Username == player.Username {
			return domain.ErrUsernameTaken
		}
	}
	t.st.lastPlayerID++
	player.ID = t.st.lastPlayerID
	t.st.players[player.ID] = *player
	return nil
}

func (t *tx) GetPlayer(_ context.Context, playerID int64) (domain.Player, error) {
	p, ok := t.st.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (t *tx) ListPlayers(_ context.Context, quizID int64) ([]domain.Player, error) {
	out := make([]domain.Player, 0)
	for _, p := range t.st.players {
		if p.QuizID == quizID {
			out = append(out, p)
		}
	}
	sortPlayers(out)
	return out, nil
}

func (t *tx) ListAllPlayers(_ context.Context) ([]domain.Player, error) {
	out := make([]domain.Player, 0, len(t.st.players))
	for _, p := range t.st.players {
		out = append(out, p)
	}
	sortPlayers(out)
	return out, nil
}

func (t *tx) UpdatePlayerScore(_ context.Context, playerID int64, score domain.Score) error {
	p, ok := t.st.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Score = score
	t.st.players[playerID] = p
	return nil
}

func (t *tx) DeletePlayer(_ context.Context, playerID int64) error {
	p, ok := t.st.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	delete(t.st.players, playerID)
	delete(t.st.progress, progressKey{playerID: playerID, quizID: p.QuizID})
	t.dropAnswers(func(a domain.PlayerAnswer) bool { return a.PlayerID == playerID })
	return nil
}

func (t *tx) CreateProgress(_ context.Context, progress domain.PlayerProgress) (bool, error) {
	if _, ok := t.st.players[progress.PlayerID]; !ok {
		return false, domain.ErrPlayerNotFound
	}
	key := progressKey{playerID: progress.PlayerID, quizID: progress.QuizID}
	if _, ok := t.st.progress[key]; ok {
		return false, nil
	}
	t.st.progress[key] = cloneProgress(progress)
	return true, nil
}

func (t *tx) GetProgress(_ context.Context, playerID, quizID int64) (domain.PlayerProgress, error) {
	p, ok := t.st.progress[progressKey{playerID: playerID, quizID: quizID}]
	if !ok {
		return domain.PlayerProgress{}, domain.ErrProgressNotFound
	}
	return cloneProgress(p), nil
}

func (t *tx) UpdateProgress(_ context.Context, progress domain.PlayerProgress) error {
	key := progressKey{playerID: progress.PlayerID, quizID: progress.QuizID}
	if _, ok := t.st.progress[key]; !ok {
		return domain.ErrProgressNotFound
	}
	t.st.progress[key] = cloneProgress(progress)
	return nil
}

func (t *tx) ListProgress(_ context.Context, quizID int64) ([]domain.PlayerProgress, error) {
	out := make([]domain.PlayerProgress, 0)
	for k, p := range t.st.progress {
		if k.quizID == quizID {
			out = append(out, cloneProgress(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (t *tx) AddAnswer(_ context.Context, answer *domain.PlayerAnswer) error {
	if _, ok := t.st.players[answer.PlayerID]; !ok {
		return domain.ErrPlayerNotFound
	}
	t.st.lastAnswerID++
	answer.ID = t.st.lastAnswerID
	t.st.answers = append(t.st.answers, *answer)
	return nil
}

func (t *tx) ListAnswers(_ context.Context, playerID int64) ([]domain.PlayerAnswer, error) {
	out := make([]domain.PlayerAnswer, 0)
	for _, a := range t.st.answers {
		if a.PlayerID == playerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) CountAnswers(_ context.Context, quizID int64) (int, error) {
	n := 0
	for _, a := range t.st.answers {
		if p, ok := t.st.players[a.PlayerID]; ok && p.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (t *tx) PurgeParticipants(_ context.Context, quizID int64) error {
	gone := make(map[int64]bool)
	for id, p := range t.st.players {
		if p.QuizID == quizID {
			gone[id] = true
			delete(t.st.players, id)
		}
	}
	for k := range t.st.progress {
		if k.quizID == quizID {
			delete(t.st.progress, k)
		}
	}
	t.dropAnswers(func(a domain.PlayerAnswer) bool { return gone[a.PlayerID] })
	return nil
}

func (t *tx) ResetScores(_ context.Context, quizID int64) error {
	t.resetWhere(func(id int64) bool { return id == quizID })
	return nil
}

func (t *tx) ResetAllScores(_ context.Context) error {
	t.resetWhere(func(int64) bool { return true })
	return nil
}

func (t *tx) resetWhere(match func(quizID int64) bool) {
	for id, p := range t.st.players {
		if match(p.QuizID) {
			p.Score = domain.Score{}
			t.st.players[id] = p
		}
	}
	for k, p := range t.st.progress {
		if match(k.quizID) {
			p.CurrentIndex = 0
			p.Completed = false
			p.CompletionTime = nil
			t.st.progress[k] = p
		}
	}
}

func (t *tx) dropAnswers(drop func(domain.PlayerAnswer) bool) {
	kept := t.st.answers[:0]
	for _, a := range t.st.answers {
		if !drop(a) {
			kept = append(kept, a)
		}
	}
	t.st.answers = kept
}

func sortPlayers(players []domain.Player) {
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	if q.EndedAt != nil {
		t := *q.EndedAt
		q.EndedAt = &t
	}
	return q
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	if qs == nil {
		return []domain.Question{}
	}
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

func cloneProgress(p domain.PlayerProgress) domain.PlayerProgress {
	p.Order = append([]int64(nil), p.Order...)
	if p.CompletionTime != nil {
		t := *p.CompletionTime
		p.CompletionTime = &t
	}
	return p
}
