package app

import (
	"fmt"
	"time"

	"live-quiz-service/internal/domain"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateAwaitingQuestion
	StateQuestion
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingQuestion:
		return "awaiting-question"
	case StateQuestion:
		return "question"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateOf derives the lifecycle state from a session record.
func StateOf(s domain.Session) State {
	switch {
	case s.Live && s.CurrentQuestionIndex >= 0:
		return StateQuestion
	case s.Live:
		return StateAwaitingQuestion
	case !s.StartedAt.IsZero():
		return StateEnded
	default:
		return StateIdle
	}
}

// The transition functions below mutate a session record in place and are the only
// code that moves CurrentQuestionIndex. They run inside a store update callback, so
// they must not perform I/O.

func startSession(s *domain.Session, code string, now time.Time) error {
	if s.Live {
		return fmt.Errorf("%w: quiz %s is already live with code %s", domain.ErrInvalidState, s.QuizID, s.SessionCode)
	}
	s.Live = true
	s.SessionCode = code
	s.CurrentQuestionIndex = domain.NoQuestion
	s.QuestionStartTime = time.Time{}
	s.StartedAt = now
	return nil
}

// advanceSession moves to the next question. It reports finished when the quiz ran
// out of questions, in which case the caller archives the session.
func advanceSession(s *domain.Session, questionCount int, now time.Time) (bool, error) {
	if !s.Live {
		return false, fmt.Errorf("%w: quiz %s is not live", domain.ErrInvalidState, s.QuizID)
	}
	next := s.CurrentQuestionIndex + 1
	if next >= questionCount {
		return true, nil
	}
	s.CurrentQuestionIndex = next
	s.QuestionStartTime = now
	return false, nil
}

// archiveSession closes a live session, appending one result per participant.
func archiveSession(s *domain.Session, participants []domain.Participant, now time.Time) domain.ArchivedSummary {
	results := make([]domain.ArchivedResult, 0, len(participants))
	for _, p := range participants {
		answers := make([]domain.Answer, len(p.Answers))
		copy(answers, p.Answers)
		results = append(results, domain.ArchivedResult{
			ParticipantName: p.Name,
			Score:           p.Score,
			CompletedAt:     now,
			Answers:         answers,
		})
	}
	summary := domain.ArchivedSummary{
		QuizID:      s.QuizID,
		SessionCode: s.SessionCode,
		EndedAt:     now,
		Results:     results,
	}

	s.ArchivedResults = append(s.ArchivedResults, results...)
	s.Live = false
	s.SessionCode = ""
	s.CurrentQuestionIndex = domain.NoQuestion
	s.QuestionStartTime = time.Time{}
	return summary
}

// checkJoinable validates that participants may join s with code.
func checkJoinable(s domain.Session, code string) error {
	if !s.Live || s.SessionCode == "" || s.SessionCode != code {
		return fmt.Errorf("%w: no live session for code %q", domain.ErrSessionNotFound, code)
	}
	return nil
}

// checkAnswerable validates that p may answer the current question of s.
func checkAnswerable(s domain.Session, p domain.Participant) error {
	if !s.Live {
		return fmt.Errorf("%w: quiz %s is not live", domain.ErrInvalidState, s.QuizID)
	}
	if p.SessionCode != s.SessionCode {
		return fmt.Errorf("%w: participant belongs to an earlier session", domain.ErrInvalidState)
	}
	if !s.QuestionOpen() {
		return fmt.Errorf("%w: no question is open", domain.ErrInvalidState)
	}
	return nil
}
