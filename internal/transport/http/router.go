package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"proquiz-service/internal/auth"
)

// NewRouter wires the JSON API and the websocket stream.
func NewRouter(h *Handler, ws *WSHandler, log zerolog.Logger) http.Handler {
	authn := &authenticator{sessions: h.sessions}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	r.Get("/healthz", h.Health)
	r.Get("/ws", ws.ServeWS)
	r.Get("/join/{id}", h.JoinLanding)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rankings", h.Rankings)

		r.Route("/quizzes", func(r chi.Router) {
			r.With(authn.require(auth.RoleAdmin)).Post("/import", h.ImportQuiz)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/status", h.Status)
				r.Get("/join-url", h.JoinURL)
				r.Get("/qr.png", h.QRCode)
				r.Get("/standings", h.Standings)
				r.Get("/performance", h.Performance)
				r.Post("/join", h.Join)

				r.Group(func(r chi.Router) {
					r.Use(authn.require(auth.RolePlayer))
					r.Get("/question", h.CurrentQuestion)
					r.Post("/answers", h.SubmitAnswer)
				})

				r.With(authn.optional).Get("/results", h.Results)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(authn.require(auth.RoleAdmin))
				r.Get("/dashboard", h.Dashboard)
				r.Get("/archived", h.Archived)
				r.Post("/rankings/reset", h.ResetRankings)

				r.Route("/quizzes/{id}", func(r chi.Router) {
					r.Delete("/", h.DeleteQuiz)
					r.Post("/start", h.StartQuiz)
					r.Post("/end", h.EndQuiz)
					r.Post("/archive", h.ArchiveQuiz)
					r.Post("/re-offer", h.ReOfferQuiz)
					r.Post("/reset", h.ResetQuiz)
					r.Post("/players/{pid}/adjust", h.AdjustScore)
					r.Delete("/players/{pid}", h.DeletePlayer)
				})
			})
		})
	})

	return r
}
