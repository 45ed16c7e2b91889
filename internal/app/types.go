package app

import "live-quiz-service/internal/domain"

// StartResult is returned to the host when a session goes live.
type StartResult struct {
	QuizID      string `json:"quizId"`
	SessionCode string `json:"sessionCode"`
}

// JoinResult carries the participant credentials plus the state needed to render
// the session without waiting for the next event.
type JoinResult struct {
	ParticipantID string              `json:"participantId"`
	Token         string              `json:"token"`
	Name          string              `json:"name"`
	QuizID        string              `json:"quizId"`
	State         domain.SessionState `json:"state"`
}

// AdvanceResult reports either the newly opened question or the end of the quiz.
type AdvanceResult struct {
	Finished      bool                      `json:"finished"`
	QuestionIndex int                       `json:"questionIndex"`
	TimeLimit     int                       `json:"timeLimit,omitempty"`
	Question      *domain.QuestionView      `json:"question,omitempty"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard"`
	Summary       *domain.ArchivedSummary   `json:"summary,omitempty"`
}

// SubmitResult summarizes the outcome of a submission for a single participant.
type SubmitResult struct {
	QuestionIndex int                       `json:"questionIndex"`
	Correct       bool                      `json:"isCorrect"`
	Points        int                       `json:"points"`
	Score         int                       `json:"score"`
	TimeTaken     float64                   `json:"timeTaken"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard"`
}

// ConnectResult is returned when a participant (re)attaches with its token.
type ConnectResult struct {
	ParticipantID string              `json:"participantId"`
	Name          string              `json:"name"`
	QuizID        string              `json:"quizId"`
	Connection    int64               `json:"connection"`
	Score         int                 `json:"score"`
	Answered      bool                `json:"answeredCurrent"`
	State         domain.SessionState `json:"state"`
}
