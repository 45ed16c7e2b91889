package domain

import (
	"fmt"
	"time"
)

// DefaultTimeLimit applies to questions that do not declare their own limit.
const DefaultTimeLimit = 30

// NoQuestion is the question index of a session that is not showing a question.
const NoQuestion = -1

// Option represents a possible answer for a question.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models an MCQ question with at least one correct option.
type Question struct {
	ID        string   `json:"id,omitempty"`
	Text      string   `json:"text"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	Options   []Option `json:"options"`
	TimeLimit int      `json:"timeLimit"` // seconds, defaults to DefaultTimeLimit if zero
}

// Limit returns the effective time limit in seconds.
func (q Question) Limit() int {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return q.TimeLimit
}

// Quiz is an ordered collection of questions. The live engine never mutates it.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Validate checks that the quiz can be played.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", ErrInvalidQuiz, q.ID)
	}
	for i, question := range q.Questions {
		if question.TimeLimit < 0 {
			return fmt.Errorf("%w: question %d has a negative time limit", ErrInvalidQuiz, i)
		}
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuiz, i)
		}
		correct := false
		for _, opt := range question.Options {
			if opt.IsCorrect {
				correct = true
				break
			}
		}
		if !correct {
			return fmt.Errorf("%w: question %d has no correct option", ErrInvalidQuiz, i)
		}
	}
	return nil
}

// Session is the mutable record of the single live run of a quiz.
type Session struct {
	QuizID               string           `json:"quizId"`
	Live                 bool             `json:"live"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
	SessionCode          string           `json:"sessionCode,omitempty"`
	QuestionStartTime    time.Time        `json:"questionStartTime,omitempty"`
	StartedAt            time.Time        `json:"startedAt,omitempty"`
	ArchivedResults      []ArchivedResult `json:"archivedResults,omitempty"`
}

// NewSession returns the idle record of a quiz that has never been started.
func NewSession(quizID string) Session {
	return Session{QuizID: quizID, CurrentQuestionIndex: NoQuestion}
}

// QuestionOpen reports whether a question is currently accepting answers.
func (s Session) QuestionOpen() bool {
	return s.Live && s.CurrentQuestionIndex >= 0
}

// Answer is a single scored submission.
type Answer struct {
	QuestionIndex int       `json:"questionIndex"`
	AnsweredAt    time.Time `json:"answeredAt"`
	IsCorrect     bool      `json:"isCorrect"`
	TimeTaken     float64   `json:"timeTaken"`
	Points        int       `json:"points"`
	Option        int       `json:"option"`
}

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Token       string    `json:"token"`
	QuizID      string    `json:"quizId"`
	SessionCode string    `json:"sessionCode"`
	JoinSeq     int64     `json:"joinSeq"`
	Score       int       `json:"score"`
	Answers     []Answer  `json:"answers"`
	Connected   bool      `json:"connected"`
	// Connection counts socket attachments; only the latest one may detach.
	Connection  int64     `json:"connection"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastActive  time.Time `json:"lastActive"`
}

// AnswerFor returns the answer recorded for a question index, if any.
func (p Participant) AnswerFor(questionIndex int) (Answer, bool) {
	for _, a := range p.Answers {
		if a.QuestionIndex == questionIndex {
			return a, true
		}
	}
	return Answer{}, false
}

// CorrectCount returns how many recorded answers were correct.
func (p Participant) CorrectCount() int {
	n := 0
	for _, a := range p.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// ArchivedResult is one participant's final standing in a finished session.
type ArchivedResult struct {
	ParticipantName string    `json:"participantName"`
	Score           int       `json:"score"`
	CompletedAt     time.Time `json:"completedAt"`
	Answers         []Answer  `json:"answers"`
}

// ArchivedSummary is produced when a session ends.
type ArchivedSummary struct {
	QuizID      string           `json:"quizId"`
	SessionCode string           `json:"sessionCode,omitempty"`
	EndedAt     time.Time        `json:"endedAt"`
	Results     []ArchivedResult `json:"results"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	AnsweredCount int    `json:"answeredCount"`
	CorrectCount  int    `json:"correctCount"`
}

// QuestionView is the participant-facing projection of a question; correctness flags are withheld.
type QuestionView struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Options   []string  `json:"options"`
	TimeLimit int       `json:"timeLimit"`
	StartedAt time.Time `json:"startedAt"`
}

// NewQuestionView projects question index i of quiz started at startedAt.
func NewQuestionView(quiz Quiz, i int, startedAt time.Time) QuestionView {
	q := quiz.Questions[i]
	options := make([]string, len(q.Options))
	for j, opt := range q.Options {
		options[j] = opt.Text
	}
	return QuestionView{
		Index:     i,
		Text:      q.Text,
		ImageURL:  q.ImageURL,
		Options:   options,
		TimeLimit: q.Limit(),
		StartedAt: startedAt,
	}
}

// SessionState is the full resync payload handed to (re)joining clients.
type SessionState struct {
	QuizID               string             `json:"quizId"`
	Live                 bool               `json:"live"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	QuestionCount        int                `json:"questionCount"`
	Question             *QuestionView      `json:"question,omitempty"`
	Leaderboard          []LeaderboardEntry `json:"leaderboard"`
}

// ParticipantCount reports how many participants are connected.
type ParticipantCount struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}
