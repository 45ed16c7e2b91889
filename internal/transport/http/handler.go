package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Handler exposes the session operations as a REST API.
type Handler struct {
	service *app.QuizService
	logger  *slog.Logger
}

func NewHandler(service *app.QuizService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/quizzes/{quizID}", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/next", h.next)
		r.Post("/end", h.end)
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/state", h.state)
		r.Get("/participants", h.participants)
		r.Get("/results", h.results)
	})
	r.Post("/join", h.join)
	r.Post("/answer", h.answer)
	return r
}

type joinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type answerRequest struct {
	Token  string `json:"token"`
	Answer *int   `json:"answer"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.StartSession(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusCreated, res, err)
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AdvanceQuestion(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.EndSession(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetLeaderboard(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.SessionState(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) participants(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ParticipantCount(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ArchivedResults(r.Context(), chi.URLParam(r, "quizID"))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument))
		return
	}
	res, err := h.service.JoinSession(r.Context(), req.Code, req.Name)
	h.respond(w, r, http.StatusCreated, res, err)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument))
		return
	}
	if req.Answer == nil {
		writeError(w, fmt.Errorf("%w: answer is required", domain.ErrInvalidArgument))
		return
	}
	res, err := h.service.SubmitAnswer(r.Context(), req.Token, *req.Answer)
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if code, _ := statusFor(err); code >= http.StatusInternalServerError {
			h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}
