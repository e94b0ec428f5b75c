package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"proquiz-service/internal/app"
	"proquiz-service/internal/auth"
	"proquiz-service/internal/domain"
	"proquiz-service/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	svc *app.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	svc := app.NewService(store, memory.NewQuestionCache(store, time.Minute),
		app.WithNotifier(memory.NewHub()),
		app.WithSequencer(app.NewSeededSequencer(7)),
	)
	hash, err := auth.HashPIN("123456")
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	log := zerolog.Nop()
	h := NewHandler(svc, auth.NewSessions("test-secret", time.Hour), auth.NewSuperAdmin("root", hash), NewJoinLinks("http://quiz.local/", "8080"), log)
	srv := httptest.NewServer(NewRouter(h, NewWSHandler(svc, log), log))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc}
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Error    *ErrorBody      `json:"error"`
	Metadata Metadata        `json:"metadata"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", req.URL.Path, err)
	}
	if env.Metadata.RequestID == "" {
		t.Fatalf("expected request id in metadata")
	}
	return resp.StatusCode, env
}

func decode(t *testing.T, raw json.RawMessage, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"username": "root", "pin": "123456"})
	if status != http.StatusOK {
		t.Fatalf("login: %d %+v", status, env.Error)
	}
	var out struct {
		Token string `json:"token"`
	}
	decode(t, env.Data, &out)
	return out.Token
}

func (s *testServer) join(t *testing.T, quizID int64, username string) (domain.Player, string) {
	t.Helper()
	status, env := s.do(t, http.MethodPost, quizPath(quizID, "/join"), "", map[string]string{"username": username})
	if status != http.StatusCreated {
		t.Fatalf("join %s: %d %+v", username, status, env.Error)
	}
	var out struct {
		Player domain.Player `json:"player"`
		Token  string        `json:"token"`
	}
	decode(t, env.Data, &out)
	return out.Player, out.Token
}

func quizPath(quizID int64, suffix string) string {
	return "/api/quizzes/" + itoa(quizID) + suffix
}

func adminPath(quizID int64, suffix string) string {
	return "/api/admin/quizzes/" + itoa(quizID) + suffix
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func quizWorkbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	rows := [][]interface{}{
		{"Quiz Title", "Description", "Quiz Administrator", "Question", "Type", "Option A", "Option B", "Correct Answer"},
		{"Basics", "Warm-up", "host", "2 + 2?", "mcq", "3", "4", "B"},
		{"", "", "", "Capital of France?", "fill", "", "", "Paris"},
	}
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func (s *testServer) upload(t *testing.T, token string, workbook io.Reader) (int, envelope) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("excel", "quiz.xlsx")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := io.Copy(part, workbook); err != nil {
		t.Fatalf("copy workbook: %v", err)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, s.URL+"/api/quizzes/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return s.send(t, req)
}

// answerFor knows the correct input for the workbook questions.
func answerFor(text string) string {
	switch text {
	case "2 + 2?":
		return "b"
	case "Capital of France?":
		return "paris"
	}
	return ""
}

func TestImportPlayAndResults(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(t)

	status, env := s.upload(t, adminToken, quizWorkbook(t))
	if status != http.StatusCreated {
		t.Fatalf("import: %d %+v", status, env.Error)
	}
	var imported struct {
		Quiz              domain.Quiz `json:"quiz"`
		QuestionsImported int         `json:"questionsImported"`
		JoinURL           string      `json:"joinUrl"`
	}
	decode(t, env.Data, &imported)
	quizID := imported.Quiz.ID
	if imported.QuestionsImported != 2 || imported.Quiz.Status != domain.StatusNotStarted {
		t.Fatalf("unexpected import %+v", imported)
	}
	if imported.JoinURL != "http://quiz.local/join/"+itoa(quizID) {
		t.Fatalf("unexpected join url %q", imported.JoinURL)
	}

	_, alice := s.join(t, quizID, "alice")
	_, bob := s.join(t, quizID, "bob")

	if status, env := s.do(t, http.MethodPost, adminPath(quizID, "/start"), adminToken, nil); status != http.StatusOK {
		t.Fatalf("start: %d %+v", status, env.Error)
	}
	status, env = s.do(t, http.MethodGet, quizPath(quizID, "/status"), "", nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), string(domain.StatusStarted)) {
		t.Fatalf("status: %d %s", status, env.Data)
	}

	play := func(token string, correct bool) turnView {
		for {
			status, env := s.do(t, http.MethodGet, quizPath(quizID, "/question"), token, nil)
			if status != http.StatusOK {
				t.Fatalf("question: %d %+v", status, env.Error)
			}
			if strings.Contains(string(env.Data), "correctAnswer") {
				t.Fatalf("question view leaks the answer: %s", env.Data)
			}
			var turn turnView
			decode(t, env.Data, &turn)
			if turn.Completed {
				return turn
			}
			answer := "nope"
			if correct {
				answer = answerFor(turn.Question.Text)
			}
			status, env = s.do(t, http.MethodPost, quizPath(quizID, "/answers"), token, map[string]interface{}{
				"question_id": turn.Question.ID,
				"answer":      answer,
			})
			if status != http.StatusOK {
				t.Fatalf("answer: %d %+v", status, env.Error)
			}
		}
	}

	if turn := play(alice, true); turn.Total != 2 {
		t.Fatalf("unexpected final turn %+v", turn)
	}
	play(bob, false)

	status, env = s.do(t, http.MethodGet, quizPath(quizID, "/results"), alice, nil)
	if status != http.StatusOK {
		t.Fatalf("results: %d %+v", status, env.Error)
	}
	var res struct {
		Rank    int         `json:"rank"`
		Ranking []entryView `json:"ranking"`
		Delta   struct {
			PointsGained int `json:"pointsGained"`
		} `json:"delta"`
	}
	decode(t, env.Data, &res)
	if res.Rank != 1 || len(res.Ranking) != 2 || res.Ranking[0].Display != "2+1⚡" {
		t.Fatalf("unexpected results %+v", res)
	}
	if res.Delta.PointsGained != 3 {
		t.Fatalf("expected 3 points gained, got %d", res.Delta.PointsGained)
	}

	status, env = s.do(t, http.MethodGet, quizPath(quizID, "/results"), adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("admin results: %d %+v", status, env.Error)
	}
	var adminRes struct {
		AdminScore int `json:"adminScore"`
	}
	decode(t, env.Data, &adminRes)
	if adminRes.AdminScore != 2 {
		t.Fatalf("expected admin perfect score 2, got %d", adminRes.AdminScore)
	}

	status, env = s.do(t, http.MethodGet, "/api/rankings", "", nil)
	if status != http.StatusOK {
		t.Fatalf("rankings: %d", status)
	}
	var overall []domain.OverallEntry
	decode(t, env.Data, &overall)
	if len(overall) != 3 || overall[0].TotalPoints != 3 {
		t.Fatalf("unexpected overall ranking %+v", overall)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	admin, err := s.svc.Admin(true)
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	quiz, _, err := admin.ImportQuiz(context.Background(), domain.QuizImport{
		Title:     "Tiny",
		AdminName: "host",
		Questions: []domain.QuestionDraft{{Text: "Sky colour?", Kind: domain.KindFreeText, CorrectAnswer: "blue"}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	_, alice := s.join(t, quiz.ID, "alice")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		code   ErrCode
	}{
		{"unknown quiz", http.MethodPost, quizPath(999, "/join"), "", map[string]string{"username": "x"}, http.StatusNotFound, CodeNotFound},
		{"bad id", http.MethodGet, "/api/quizzes/abc/status", "", nil, http.StatusBadRequest, CodeInvalidID},
		{"taken", http.MethodPost, quizPath(quiz.ID, "/join"), "", map[string]string{"username": "alice"}, http.StatusConflict, CodeUsernameTaken},
		{"missing username", http.MethodPost, quizPath(quiz.ID, "/join"), "", map[string]string{}, http.StatusBadRequest, CodeValidation},
		{"not started", http.MethodGet, quizPath(quiz.ID, "/question"), alice, nil, http.StatusConflict, CodeInvalidState},
		{"no session", http.MethodGet, quizPath(quiz.ID, "/question"), "", nil, http.StatusUnauthorized, CodeTokenRequired},
		{"bad token", http.MethodGet, quizPath(quiz.ID, "/question"), "junk", nil, http.StatusUnauthorized, CodeTokenInvalid},
		{"player as admin", http.MethodPost, adminPath(quiz.ID, "/start"), alice, nil, http.StatusForbidden, CodeForbidden},
		{"results hidden", http.MethodGet, quizPath(quiz.ID, "/results"), alice, nil, http.StatusConflict, CodeInvalidState},
		{"bad login", http.MethodPost, "/api/admin/login", "", map[string]string{"username": "root", "pin": "000000"}, http.StatusUnauthorized, CodeInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := s.do(t, tc.method, tc.path, tc.token, tc.body)
			if status != tc.status || env.Error == nil || env.Error.Code != tc.code {
				t.Fatalf("expected %d %s, got %d %+v", tc.status, tc.code, status, env.Error)
			}
		})
	}

	status, env := s.do(t, http.MethodPost, quizPath(quiz.ID, "/join"), "", map[string]string{})
	if status != http.StatusBadRequest || env.Error.Fields["username"] == "" {
		t.Fatalf("expected username field error, got %+v", env.Error)
	}

	if _, err := admin.Start(context.Background(), quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	status, env = s.do(t, http.MethodPost, quizPath(quiz.ID, "/answers"), alice, map[string]interface{}{"question_id": 12345, "answer": "blue"})
	if status != http.StatusConflict || env.Error.Code != CodeSequenceMismatch {
		t.Fatalf("expected sequence mismatch, got %d %+v", status, env.Error)
	}
}

func TestSubmitWithoutAnswerField(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin, _ := s.svc.Admin(true)
	quiz, _, err := admin.ImportQuiz(ctx, domain.QuizImport{
		Title:     "Missing",
		AdminName: "host",
		Questions: []domain.QuestionDraft{
			{Text: "Sky colour?", Kind: domain.KindFreeText, CorrectAnswer: "blue"},
			{Text: "Grass colour?", Kind: domain.KindFreeText, CorrectAnswer: "green"},
		},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	_, token := s.join(t, quiz.ID, "alice")
	if _, err := admin.Start(ctx, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	currentTurn := func() turnView {
		t.Helper()
		status, env := s.do(t, http.MethodGet, quizPath(quiz.ID, "/question"), token, nil)
		if status != http.StatusOK {
			t.Fatalf("question: %d %+v", status, env.Error)
		}
		var turn turnView
		decode(t, env.Data, &turn)
		return turn
	}
	before := currentTurn()

	status, env := s.do(t, http.MethodPost, quizPath(quiz.ID, "/answers"), token, map[string]interface{}{
		"question_id": before.Question.ID,
	})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != CodeValidation {
		t.Fatalf("expected validation error, got %d %+v", status, env.Error)
	}
	if env.Error.Fields["answer"] == "" {
		t.Fatalf("expected answer field error, got %+v", env.Error.Fields)
	}

	after := currentTurn()
	if after.Index != before.Index || after.Question.ID != before.Question.ID {
		t.Fatalf("cursor moved on a rejected submission: %+v -> %+v", before, after)
	}
	dashboard, err := admin.Dashboard(ctx)
	if err != nil || len(dashboard) != 1 || len(dashboard[0].Active) != 1 {
		t.Fatalf("dashboard: %+v %v", dashboard, err)
	}
	if n := dashboard[0].Active[0].Answers; n != 0 {
		t.Fatalf("expected no recorded answers, got %d", n)
	}

	status, env = s.do(t, http.MethodPost, quizPath(quiz.ID, "/answers"), token, map[string]interface{}{
		"question_id": before.Question.ID,
		"answer":      "",
	})
	if status != http.StatusOK {
		t.Fatalf("empty answer must still be accepted, got %d %+v", status, env.Error)
	}
	if next := currentTurn(); next.Index != before.Index+1 {
		t.Fatalf("expected cursor to advance after an empty answer, got %+v", next)
	}
}

func TestPlayerSessionBoundToQuiz(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.svc.Admin(true)
	draft := domain.QuizImport{
		Title:     "A",
		AdminName: "host",
		Questions: []domain.QuestionDraft{{Text: "Q", Kind: domain.KindFreeText, CorrectAnswer: "a"}},
	}
	first, _, _ := admin.ImportQuiz(context.Background(), draft)
	second, _, _ := admin.ImportQuiz(context.Background(), draft)

	_, token := s.join(t, first.ID, "alice")
	status, env := s.do(t, http.MethodGet, quizPath(second.ID, "/question"), token, nil)
	if status != http.StatusForbidden || env.Error.Code != CodeForbidden {
		t.Fatalf("expected forbidden, got %d %+v", status, env.Error)
	}
}

func TestQRCodeAndJoinURL(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.svc.Admin(true)
	quiz, _, _ := admin.ImportQuiz(context.Background(), domain.QuizImport{
		Title:     "QR",
		AdminName: "host",
		Questions: []domain.QuestionDraft{{Text: "Q", Kind: domain.KindFreeText, CorrectAnswer: "a"}},
	})

	resp, err := http.Get(s.URL + quizPath(quiz.ID, "/qr.png"))
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	png, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected qr response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected png bytes")
	}

	status, env := s.do(t, http.MethodGet, quizPath(quiz.ID, "/join-url"), "", nil)
	var out map[string]string
	decode(t, env.Data, &out)
	if status != http.StatusOK || out["url"] != "http://quiz.local/join/"+itoa(quiz.ID) {
		t.Fatalf("unexpected join url %d %v", status, out)
	}

	if status, _ := s.do(t, http.MethodGet, quizPath(999, "/join-url"), "", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown quiz, got %d", status)
	}

	landing := strings.TrimPrefix(out["url"], "http://quiz.local")
	status, env = s.do(t, http.MethodGet, landing, "", nil)
	if status != http.StatusOK {
		t.Fatalf("join link %s: %d %+v", landing, status, env.Error)
	}
	var page joinLanding
	decode(t, env.Data, &page)
	if page.QuizID != quiz.ID || page.Title != "QR" || page.JoinPath != quizPath(quiz.ID, "/join") {
		t.Fatalf("unexpected join landing %+v", page)
	}
	if status, _ := s.do(t, http.MethodGet, "/join/999", "", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown quiz landing, got %d", status)
	}
}
