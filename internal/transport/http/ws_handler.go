package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	sendBuffer      = 32
	writeWait       = 10 * time.Second
	maxMessageBytes = 4096
	disconnectWait  = 2 * time.Second
)

// EventSource hands out per-quiz event subscriptions. memory.Hub implements it.
type EventSource interface {
	Subscribe(quizID string) (<-chan domain.Event, func())
}

type WSHandler struct {
	service  *app.QuizService
	events   EventSource
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, events EventSource, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		events:  events,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer *int `json:"answer"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func errorMessage(err error) outboundMessage {
	_, code := statusFor(err)
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Code: code}}
}

// ServeWS upgrades the request into a host channel (?quizId=) or a participant
// channel (?token=).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	quizID := r.URL.Query().Get("quizId")
	if token == "" && quizID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing quizId or token", Code: "invalid_argument"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	if token != "" {
		h.serveParticipant(r.Context(), conn, token)
		return
	}
	h.serveHost(r.Context(), conn, quizID)
}

func (h *WSHandler) serveParticipant(ctx context.Context, conn *websocket.Conn, token string) {
	connected, err := h.service.Connect(ctx, token)
	if err != nil {
		h.writeOnce(conn, errorMessage(err))
		return
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectWait)
		defer cancel()
		if err := h.service.Disconnect(dctx, token, connected.Connection); err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("disconnect failed", "participant_id", connected.ParticipantID, "error", err)
		}
	}()

	h.pump(conn, connected.QuizID, []outboundMessage{{Type: "joined", Payload: connected}}, func(in inboundMessage) outboundMessage {
		if in.Type != "answer" {
			return errorMessage(errors.New("unsupported message type"))
		}
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil || payload.Answer == nil {
			return errorMessage(domain.ErrInvalidArgument)
		}
		res, err := h.service.SubmitAnswer(ctx, token, *payload.Answer)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage{Type: "answerResult", Payload: res}
	})
}

func (h *WSHandler) serveHost(ctx context.Context, conn *websocket.Conn, quizID string) {
	state, err := h.service.SessionState(ctx, quizID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		h.writeOnce(conn, errorMessage(err))
		return
	}
	if errors.Is(err, domain.ErrSessionNotFound) {
		state = domain.SessionState{QuizID: quizID, CurrentQuestionIndex: domain.NoQuestion, Leaderboard: []domain.LeaderboardEntry{}}
	}
	count, err := h.service.ParticipantCount(ctx, quizID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		h.writeOnce(conn, errorMessage(err))
		return
	}
	if count.Names == nil {
		count.Names = []string{}
	}
	attached := domain.Event{Type: domain.EventParticipantCount, QuizID: quizID, At: time.Now(), Participants: &count}

	greetings := []outboundMessage{
		{Type: "state", Payload: state},
		{Type: string(attached.Type), Payload: attached},
	}
	h.pump(conn, quizID, greetings, func(in inboundMessage) outboundMessage {
		switch in.Type {
		case "next":
			res, err := h.service.AdvanceQuestion(ctx, quizID)
			if err != nil {
				return errorMessage(err)
			}
			return outboundMessage{Type: "advanced", Payload: res}
		case "end":
			res, err := h.service.EndSession(ctx, quizID)
			if err != nil {
				return errorMessage(err)
			}
			return outboundMessage{Type: "ended", Payload: res}
		}
		return errorMessage(errors.New("unsupported message type"))
	})
}

// pump runs one connection: a single writer goroutine serializes the greetings,
// relayed events and replies, while the calling goroutine reads until the client
// goes away.
func (h *WSHandler) pump(conn *websocket.Conn, quizID string, greetings []outboundMessage, handle func(inboundMessage) outboundMessage) {
	events, unsubscribe := h.events.Subscribe(quizID)
	defer unsubscribe()

	send := make(chan outboundMessage, sendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", "quiz_id", quizID, "error", err)
				// Unblock the reader; the remaining messages are drained and dropped.
				_ = conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	for _, msg := range greetings {
		send <- msg
	}

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(ev.Type), Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		reply := handle(in)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) writeOnce(conn *websocket.Conn, msg outboundMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("ws write failed", "error", err)
	}
}
