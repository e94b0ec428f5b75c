package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"proquiz-service/internal/app"
	"proquiz-service/internal/auth"
	"proquiz-service/internal/domain"
	"proquiz-service/internal/importer"
)

const maxUploadBytes = 10 << 20

// Handler serves the quiz JSON API.
type Handler struct {
	svc      *app.Service
	sessions *auth.Sessions
	admin    *auth.SuperAdmin
	links    *JoinLinks
	bind     *binder
	log      zerolog.Logger
}

func NewHandler(svc *app.Service, sessions *auth.Sessions, admin *auth.SuperAdmin, links *JoinLinks, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		admin:    admin,
		links:    links,
		bind:     newBinder(),
		log:      log.With().Str("component", "http").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	PIN      string `json:"pin" validate:"required,len=6,numeric"`
}

type joinRequest struct {
	Username string `json:"username" validate:"required,max=50"`
}

type answerRequest struct {
	QuestionID int64   `json:"question_id" validate:"required,gt=0"`
	Answer     *string `json:"answer" validate:"required,max=1000"`
}

type adjustRequest struct {
	Points int    `json:"points" validate:"ne=0"`
	Reason string `json:"reason" validate:"max=200"`
}

type joinLanding struct {
	QuizID   int64             `json:"quizId"`
	Title    string            `json:"title"`
	Status   domain.QuizStatus `json:"status"`
	JoinPath string            `json:"joinPath"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.bind.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.admin.Verify(req.Username, req.PIN); err != nil {
		h.log.Warn().Str("username", req.Username).Msg("admin login rejected")
		writeFail(w, r, http.StatusUnauthorized, CodeInvalidCredentials, err.Error(), nil)
		return
	}
	token, err := h.sessions.IssueAdmin(req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setSessionCookie(w, token)
	writeData(w, r, http.StatusOK, struct {
		sessionResponse
		Username string `json:"username"`
	}{sessionResponse{token}, req.Username})
}

func (h *Handler) ImportQuiz(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFail(w, r, http.StatusBadRequest, CodeFileRequired, "multipart upload with an excel file is required", nil)
		return
	}
	file, _, err := r.FormFile("excel")
	if err != nil {
		writeFail(w, r, http.StatusBadRequest, CodeFileRequired, "excel file is required", nil)
		return
	}
	defer file.Close()

	imp, err := importer.ParseXLSX(file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quiz, questions, err := admin.ImportQuiz(r.Context(), imp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, map[string]interface{}{
		"quiz":              quiz,
		"questionsImported": len(questions),
		"skipped":           imp.Skipped,
		"joinUrl":           h.links.JoinURL(quiz.ID),
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	quiz, err := h.svc.Status(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, quiz)
}

func (h *Handler) JoinURL(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Status(r.Context(), quizID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]string{"url": h.links.JoinURL(quizID)})
}

// JoinLanding is the target of the join link and QR code. It tells a
// scanning client which quiz it reached and where to post the username.
func (h *Handler) JoinLanding(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	quiz, err := h.svc.Status(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, joinLanding{
		QuizID:   quiz.ID,
		Title:    quiz.Title,
		Status:   quiz.Status,
		JoinPath: "/api/quizzes/" + strconv.FormatInt(quiz.ID, 10) + "/join",
	})
}

func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Status(r.Context(), quizID); err != nil {
		writeError(w, r, err)
		return
	}
	png, err := h.links.QR(quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := h.bind.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	player, err := h.svc.Join(r.Context(), quizID, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.sessions.IssuePlayer(quizID, player.ID, player.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setSessionCookie(w, token)
	writeData(w, r, http.StatusCreated, map[string]interface{}{
		"player": newPlayerView(player),
		"token":  token,
	})
}

func (h *Handler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, playerID, ok := h.playerFor(w, r)
	if !ok {
		return
	}
	turn, err := h.svc.CurrentQuestion(r.Context(), quizID, playerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, newTurnView(turn))
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	quizID, playerID, ok := h.playerFor(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := h.bind.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.SubmitAnswer(r.Context(), quizID, playerID, req.QuestionID, *req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, answerView{AnswerResult: res, Display: scoreLabel(res.Score)})
}

// Results serves the admin view to admins and the personal view to the
// player the session belongs to.
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	claims := claimsFrom(r.Context())
	switch {
	case claims == nil:
		writeFail(w, r, http.StatusUnauthorized, CodeTokenRequired, "session token required", nil)
	case claims.Role == auth.RoleAdmin:
		admin, err := h.svc.Admin(true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := admin.Results(r.Context(), quizID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, newResultsView(res))
	case claims.QuizID != quizID:
		writeFail(w, r, http.StatusForbidden, CodeForbidden, "session belongs to another quiz", nil)
	default:
		res, err := h.svc.Results(r.Context(), quizID, claims.PlayerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, newResultsView(res))
	}
}

func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	perf, err := h.svc.Performance(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, perf)
}

func (h *Handler) Standings(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	standings, err := h.svc.Standings(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, newStandingsView(standings))
}

func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.OverallRanking(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, entries)
}

func (h *Handler) StartQuiz(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*app.AdminService).Start)
}

func (h *Handler) EndQuiz(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*app.AdminService).End)
}

func (h *Handler) ArchiveQuiz(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*app.AdminService).Archive)
}

func (h *Handler) ReOfferQuiz(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*app.AdminService).ReOffer)
}

func (h *Handler) ResetQuiz(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*app.AdminService).ResetSession)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(*app.AdminService, context.Context, int64) (domain.Quiz, error)) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	quiz, err := op(admin, r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, quiz)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	if err := admin.DeleteQuiz(r.Context(), quizID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]int64{"deleted": quizID})
}

func (h *Handler) AdjustScore(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	playerID, ok := int64Param(w, r, "pid")
	if !ok {
		return
	}
	var req adjustRequest
	if err := h.bind.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	player, err := admin.AdjustScore(r.Context(), quizID, playerID, req.Points, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, newPlayerView(player))
}

func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	playerID, ok := int64Param(w, r, "pid")
	if !ok {
		return
	}
	if err := admin.DeletePlayer(r.Context(), quizID, playerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]int64{"deleted": playerID})
}

func (h *Handler) ResetRankings(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	if err := admin.ResetRankings(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"reset": true})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	groups, err := admin.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, groups)
}

func (h *Handler) Archived(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminFor(w, r)
	if !ok {
		return
	}
	summaries, err := admin.Archived(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, summaries)
}

// adminFor returns the admin operations for an admin session.
func (h *Handler) adminFor(w http.ResponseWriter, r *http.Request) (*app.AdminService, bool) {
	claims := claimsFrom(r.Context())
	admin, err := h.svc.Admin(claims != nil && claims.Role == auth.RoleAdmin)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return admin, true
}

// playerFor checks that the player session was issued for the quiz in the
// path.
func (h *Handler) playerFor(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return 0, 0, false
	}
	claims := claimsFrom(r.Context())
	if claims == nil || claims.Role != auth.RolePlayer {
		writeFail(w, r, http.StatusUnauthorized, CodeTokenRequired, "player session required", nil)
		return 0, 0, false
	}
	if claims.QuizID != quizID {
		writeFail(w, r, http.StatusForbidden, CodeForbidden, "session belongs to another quiz", nil)
		return 0, 0, false
	}
	return quizID, claims.PlayerID, true
}

func quizIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return int64Param(w, r, "id")
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, r, http.StatusBadRequest, CodeInvalidID, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
