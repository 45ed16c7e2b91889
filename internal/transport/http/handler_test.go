package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestRESTSessionFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	var started app.StartResult
	if code := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/start", nil, &started); code != http.StatusCreated {
		t.Fatalf("start: status %d", code)
	}
	if started.SessionCode != "QUIZ42" {
		t.Fatalf("unexpected session code %q", started.SessionCode)
	}

	var alice app.JoinResult
	if code := srv.do(t, http.MethodPost, "/api/join", joinRequest{Code: "quiz42", Name: "Alice"}, &alice); code != http.StatusCreated {
		t.Fatalf("join: status %d", code)
	}
	if alice.Token == "" || alice.QuizID != "quiz-1" {
		t.Fatalf("unexpected join result %+v", alice)
	}

	var advanced app.AdvanceResult
	if code := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/next", nil, &advanced); code != http.StatusOK {
		t.Fatalf("next: status %d", code)
	}
	if advanced.QuestionIndex != 0 || advanced.TimeLimit != 30 {
		t.Fatalf("unexpected advance %+v", advanced)
	}

	srv.clock.Advance(3 * time.Second)
	answer := 1
	var submitted app.SubmitResult
	if code := srv.do(t, http.MethodPost, "/api/answer", answerRequest{Token: alice.Token, Answer: &answer}, &submitted); code != http.StatusOK {
		t.Fatalf("answer: status %d", code)
	}
	if !submitted.Correct || submitted.Points != 91 {
		t.Fatalf("expected 91 points for a correct answer after 3s, got %+v", submitted)
	}

	var dup errorBody
	if code := srv.do(t, http.MethodPost, "/api/answer", answerRequest{Token: alice.Token, Answer: &answer}, &dup); code != http.StatusConflict {
		t.Fatalf("duplicate answer: status %d", code)
	}
	if dup.Code != "duplicate_answer" {
		t.Fatalf("expected duplicate_answer, got %q", dup.Code)
	}

	var board []domain.LeaderboardEntry
	if code := srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/leaderboard", nil, &board); code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", code)
	}
	if len(board) != 1 || board[0].Score != 91 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	var count domain.ParticipantCount
	srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/participants", nil, &count)
	if count.Count != 1 || count.Names[0] != "Alice" {
		t.Fatalf("unexpected participant count %+v", count)
	}

	var summary domain.ArchivedSummary
	if code := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/end", nil, &summary); code != http.StatusOK {
		t.Fatalf("end: status %d", code)
	}
	if len(summary.Results) != 1 || summary.Results[0].Score != 91 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	var results []domain.ArchivedResult
	srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/results", nil, &results)
	if len(results) != 1 || results[0].ParticipantName != "Alice" {
		t.Fatalf("unexpected archived results %+v", results)
	}

	var state domain.SessionState
	srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/state", nil, &state)
	if state.Live || state.CurrentQuestionIndex != domain.NoQuestion {
		t.Fatalf("expected ended state, got %+v", state)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown quiz", http.MethodPost, "/api/quizzes/nope/start", nil, http.StatusNotFound, "not_found"},
		{"next before start", http.MethodPost, "/api/quizzes/quiz-1/next", nil, http.StatusNotFound, "not_found"},
		{"unknown code", http.MethodPost, "/api/join", joinRequest{Code: "ZZZZZZ", Name: "Bob"}, http.StatusNotFound, "not_found"},
		{"missing answer", http.MethodPost, "/api/answer", map[string]string{"token": "x"}, http.StatusBadRequest, "invalid_argument"},
		{"unknown token", http.MethodPost, "/api/answer", map[string]any{"token": "x", "answer": 0}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			if code := srv.do(t, tt.method, tt.path, tt.body, &body); code != tt.status {
				t.Fatalf("status = %d, want %d", code, tt.status)
			}
			if body.Code != tt.code {
				t.Fatalf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}

	srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/start", nil, nil)
	var body errorBody
	if code := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/start", nil, &body); code != http.StatusConflict {
		t.Fatalf("second start: status %d", code)
	}
	if code := srv.do(t, http.MethodPost, "/api/join", joinRequest{Code: "QUIZ42", Name: "  "}, &body); code != http.StatusBadRequest {
		t.Fatalf("blank name: status %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidState), http.StatusConflict},
		{domain.ErrLateOrInvalid, http.StatusUnprocessableEntity},
		{domain.ErrDuplicateAnswer, http.StatusConflict},
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{domain.ErrConflict, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.status {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestHealth(t *testing.T) {
	healthy := CheckFunc(func(context.Context) error { return nil })
	down := CheckFunc(func(context.Context) error { return errors.New("refused") })

	srv := newTestServer(t, map[string]Checker{"redis": healthy})
	var body map[string]checkResult
	if code := srv.do(t, http.MethodGet, "/healthz", nil, &body); code != http.StatusOK {
		t.Fatalf("healthy: status %d", code)
	}
	if body["redis"].Status != "ok" {
		t.Fatalf("unexpected body %+v", body)
	}

	srv = newTestServer(t, map[string]Checker{"redis": healthy, "postgres": down})
	body = nil
	if code := srv.do(t, http.MethodGet, "/healthz", nil, &body); code != http.StatusServiceUnavailable {
		t.Fatalf("degraded: status %d", code)
	}
	if body["postgres"].Status != "error" {
		t.Fatalf("unexpected body %+v", body)
	}
}
