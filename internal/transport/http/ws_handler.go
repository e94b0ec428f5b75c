package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"proquiz-service/internal/app"
	"proquiz-service/internal/domain"
)

// WSHandler streams quiz status and leaderboard changes to connected
// clients.
type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.Service, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

type outboundMessage struct {
	Type    domain.EventType `json:"type"`
	Payload interface{}      `json:"payload"`
}

type statusPayload struct {
	QuizID int64             `json:"quizId"`
	Status domain.QuizStatus `json:"status"`
}

// ServeWS upgrades the request and pushes events until either side goes
// away. The first messages are the current status and leaderboard.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	if err != nil || quizID <= 0 {
		writeFail(w, r, http.StatusBadRequest, CodeInvalidID, "missing or invalid quizId", nil)
		return
	}

	standings, updates, cancel, err := h.service.Watch(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Int64("quiz_id", quizID).Msg("ws write error")
				return
			}
			if msg.Type == domain.EventDeleted {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quiz deleted"))
				return
			}
		}
	}()

	send <- outboundMessage{Type: domain.EventStatus, Payload: statusPayload{QuizID: quizID, Status: standings.Status}}
	send <- outboundMessage{Type: domain.EventLeaderboard, Payload: newStandingsView(standings)}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- toOutbound(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Clients only listen; reading detects disconnects and handles control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func toOutbound(ev domain.Event) outboundMessage {
	switch ev.Type {
	case domain.EventLeaderboard:
		var view standingsView
		if ev.Standings != nil {
			view = newStandingsView(*ev.Standings)
		}
		return outboundMessage{Type: ev.Type, Payload: view}
	default:
		return outboundMessage{Type: ev.Type, Payload: statusPayload{QuizID: ev.QuizID, Status: ev.Status}}
	}
}
