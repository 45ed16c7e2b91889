package domain

import "time"

// EventType names a broadcast notification.
type EventType string

const (
	EventSessionStarted    EventType = "session-started"
	EventNewQuestion       EventType = "new-question"
	EventLeaderboardUpdate EventType = "leaderboard-update"
	EventParticipantCount  EventType = "participant-count"
	EventSessionEnded      EventType = "session-ended"
)

// Event is an incremental notification published on a session's channel.
// Only the field matching Type is populated.
type Event struct {
	Type         EventType          `json:"type"`
	QuizID       string             `json:"quizId"`
	At           time.Time          `json:"at"`
	SessionCode  string             `json:"sessionCode,omitempty"`
	Question     *QuestionView      `json:"question,omitempty"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	Participants *ParticipantCount  `json:"participants,omitempty"`
	Summary      *ArchivedSummary   `json:"summary,omitempty"`
}
