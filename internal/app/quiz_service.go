package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts how session records are stored (in-memory, Redis, etc).
type SessionRepository interface {
	// Get returns domain.ErrSessionNotFound for a quiz that was never started.
	Get(ctx context.Context, quizID string) (domain.Session, error)
	// Update runs fn against the current record and stores the result atomically.
	// A missing record is passed to fn as domain.NewSession(quizID). Nothing is
	// written when fn fails. Implementations return domain.ErrConflict when the
	// resulting live session code is already held by another quiz.
	Update(ctx context.Context, quizID string, fn func(*domain.Session) error) (domain.Session, error)
	// FindLiveByCode resolves a join code to its live session.
	FindLiveByCode(ctx context.Context, code string) (domain.Session, error)
}

// ParticipantRepository stores participants keyed by id and by token.
type ParticipantRepository interface {
	Create(ctx context.Context, p domain.Participant) error
	GetByToken(ctx context.Context, token string) (domain.Participant, error)
	// Update applies fn atomically to the participant owning token.
	Update(ctx context.Context, token string, fn func(*domain.Participant) error) (domain.Participant, error)
	// ListBySession returns the participants of a quiz in join order.
	ListBySession(ctx context.Context, quizID string) ([]domain.Participant, error)
	DeleteBySession(ctx context.Context, quizID string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ArchiveRepository mirrors archived summaries to a reporting store.
type ArchiveRepository interface {
	SaveSummary(ctx context.Context, summary domain.ArchivedSummary) error
	ListResults(ctx context.Context, quizID string) ([]domain.ArchivedResult, error)
}

var errStaleConnection = errors.New("connection replaced")

const (
	defaultStoreTimeout = 2 * time.Second
	defaultPublishRetry = 5 * time.Second
	maxCodeAttempts     = 5
	sessionCodeLength   = 6
	sessionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// QuizService is the session coordinator. Every mutating operation holds the
// session's lock from its first read to its last write, then publishes.
type QuizService struct {
	sessions     SessionRepository
	participants ParticipantRepository
	quizzes      QuizRepository
	broadcaster  Broadcaster
	archive      ArchiveRepository

	locks        *keyedMutex
	logger       *slog.Logger
	now          func() time.Time
	newCode      func() (string, error)
	newID        func() string
	storeTimeout time.Duration
	publishRetry time.Duration
	inflight     sync.WaitGroup
}

// Option customizes a QuizService.
type Option func(*QuizService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *QuizService) { s.logger = logger }
}

// WithClock is used by tests for deterministic timing.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *QuizService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithPublishRetry(maxElapsed time.Duration) Option {
	return func(s *QuizService) {
		if maxElapsed > 0 {
			s.publishRetry = maxElapsed
		}
	}
}

func WithArchive(archive ArchiveRepository) Option {
	return func(s *QuizService) { s.archive = archive }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *QuizService) { s.newCode = gen }
}

func NewQuizService(sessions SessionRepository, participants ParticipantRepository, quizzes QuizRepository, broadcaster Broadcaster, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:     sessions,
		participants: participants,
		quizzes:      quizzes,
		broadcaster:  broadcaster,
		locks:        newKeyedMutex(),
		logger:       slog.Default(),
		now:          time.Now,
		newCode:      NewSessionCode,
		newID:        func() string { return uuid.NewString() },
		storeTimeout: defaultStoreTimeout,
		publishRetry: defaultPublishRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionCode returns a random join code of upper-case letters and digits.
func NewSessionCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(sessionCodeAlphabet)))
	for i := 0; i < sessionCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(sessionCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// StartSession puts a quiz live under a fresh session code. Participants of the
// previous run are cleared once the new code is claimed.
func (s *QuizService) StartSession(ctx context.Context, quizID string) (StartResult, error) {
	if _, err := s.loadQuiz(ctx, quizID); err != nil {
		return StartResult{}, err
	}

	unlock := s.locks.Lock(quizID)
	defer unlock()

	current, err := s.getSession(ctx, quizID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
	case err != nil:
		return StartResult{}, err
	case current.Live:
		return StartResult{}, fmt.Errorf("%w: quiz %s is already live", domain.ErrInvalidState, quizID)
	}

	var session domain.Session
	for attempt := 1; ; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return StartResult{}, fmt.Errorf("generate session code: %w", err)
		}
		now := s.now()
		session, err = s.updateSession(ctx, quizID, func(rec *domain.Session) error {
			return startSession(rec, code, now)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxCodeAttempts {
			return StartResult{}, err
		}
		s.logger.Debug("session code collision, retrying", "quiz_id", quizID, "attempt", attempt)
	}

	if _, err := storeCall(ctx, s, "clear participants", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.participants.DeleteBySession(ctx, quizID)
	}); err != nil {
		return StartResult{}, err
	}

	s.logger.Info("session started", "quiz_id", quizID, "session_code", session.SessionCode)
	s.publish(ctx, quizID,
		domain.Event{Type: domain.EventSessionStarted, SessionCode: session.SessionCode},
		domain.Event{Type: domain.EventParticipantCount, Participants: &domain.ParticipantCount{Names: []string{}}},
	)
	return StartResult{QuizID: quizID, SessionCode: session.SessionCode}, nil
}

// JoinSession registers a new participant in the live session matching code.
func (s *QuizService) JoinSession(ctx context.Context, code, name string) (JoinResult, error) {
	code = NormalizeCode(code)
	name = strings.TrimSpace(name)
	if name == "" {
		return JoinResult{}, fmt.Errorf("%w: name is required", domain.ErrInvalidArgument)
	}
	if code == "" {
		return JoinResult{}, fmt.Errorf("%w: session code is required", domain.ErrSessionNotFound)
	}

	found, err := storeCall(ctx, s, "find session by code", func(ctx context.Context) (domain.Session, error) {
		return s.sessions.FindLiveByCode(ctx, code)
	})
	if err != nil {
		return JoinResult{}, err
	}
	quizID := found.QuizID
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return JoinResult{}, err
	}

	unlock := s.locks.Lock(quizID)
	defer unlock()

	// The code lookup ran unlocked; the session may have ended since.
	session, err := s.getSession(ctx, quizID)
	if err != nil {
		return JoinResult{}, err
	}
	if err := checkJoinable(session, code); err != nil {
		return JoinResult{}, err
	}

	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return JoinResult{}, err
	}

	now := s.now()
	p := domain.Participant{
		ID:          s.newID(),
		Token:       s.newID(),
		Name:        name,
		QuizID:      quizID,
		SessionCode: session.SessionCode,
		JoinSeq:     nextJoinSeq(participants),
		Answers:     []domain.Answer{},
		Connected:   true,
		JoinedAt:    now,
		LastActive:  now,
	}
	if _, err := storeCall(ctx, s, "create participant", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.participants.Create(ctx, p)
	}); err != nil {
		return JoinResult{}, err
	}
	participants = append(participants, p)

	state := buildState(session, quiz, participants)
	count := countConnected(participants)
	s.logger.Info("participant joined", "quiz_id", quizID, "participant_id", p.ID, "name", p.Name)
	s.publish(ctx, quizID,
		domain.Event{Type: domain.EventParticipantCount, Participants: &count},
		domain.Event{Type: domain.EventLeaderboardUpdate, Leaderboard: state.Leaderboard},
	)
	return JoinResult{
		ParticipantID: p.ID,
		Token:         p.Token,
		Name:          p.Name,
		QuizID:        quizID,
		State:         state,
	}, nil
}

// AdvanceQuestion opens the next question, or finishes and archives the session
// when the last question has been played.
func (s *QuizService) AdvanceQuestion(ctx context.Context, quizID string) (AdvanceResult, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return AdvanceResult{}, err
	}

	unlock := s.locks.Lock(quizID)
	defer unlock()

	session, err := s.getSession(ctx, quizID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if !session.Live {
		return AdvanceResult{}, fmt.Errorf("%w: quiz %s is %s", domain.ErrInvalidState, quizID, StateOf(session))
	}
	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return AdvanceResult{}, err
	}

	now := s.now()
	var (
		finished bool
		summary  domain.ArchivedSummary
	)
	session, err = s.updateSession(ctx, quizID, func(rec *domain.Session) error {
		done, err := advanceSession(rec, len(quiz.Questions), now)
		if err != nil {
			return err
		}
		finished = done
		if done {
			summary = archiveSession(rec, participants, now)
		}
		return nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}

	if finished {
		s.logger.Info("session finished", "quiz_id", quizID, "participants", len(summary.Results))
		s.mirrorArchive(ctx, summary)
		s.publish(ctx, quizID, domain.Event{Type: domain.EventSessionEnded, Summary: &summary})
		return AdvanceResult{
			Finished:      true,
			QuestionIndex: domain.NoQuestion,
			Leaderboard:   Aggregate(participants),
			Summary:       &summary,
		}, nil
	}

	view := domain.NewQuestionView(quiz, session.CurrentQuestionIndex, session.QuestionStartTime)
	leaderboard := Aggregate(participants)
	s.logger.Info("question opened", "quiz_id", quizID, "index", view.Index, "time_limit", view.TimeLimit)
	s.publish(ctx, quizID,
		domain.Event{Type: domain.EventNewQuestion, Question: &view},
		domain.Event{Type: domain.EventLeaderboardUpdate, Leaderboard: leaderboard},
	)
	return AdvanceResult{
		QuestionIndex: view.Index,
		TimeLimit:     view.TimeLimit,
		Question:      &view,
		Leaderboard:   leaderboard,
	}, nil
}

// SubmitAnswer scores the participant's answer to the open question. Time taken is
// measured on the server from the question's start time.
func (s *QuizService) SubmitAnswer(ctx context.Context, token string, option int) (SubmitResult, error) {
	p, err := s.participantByToken(ctx, token)
	if err != nil {
		return SubmitResult{}, err
	}
	quizID := p.QuizID

	unlock := s.locks.Lock(quizID)
	defer unlock()

	session, err := s.getSession(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}
	// Re-read under the lock so the duplicate check sees every earlier submission.
	p, err = s.participantByToken(ctx, token)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := checkAnswerable(session, p); err != nil {
		return SubmitResult{}, err
	}
	index := session.CurrentQuestionIndex
	if _, answered := p.AnswerFor(index); answered {
		return SubmitResult{}, fmt.Errorf("%w: question %d", domain.ErrDuplicateAnswer, index)
	}

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}
	if index >= len(quiz.Questions) {
		return SubmitResult{}, fmt.Errorf("%w: question %d no longer exists", domain.ErrInvalidState, index)
	}

	now := s.now()
	elapsed := now.Sub(session.QuestionStartTime).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	correct, points, err := Score(quiz.Questions[index], option, elapsed)
	if err != nil {
		return SubmitResult{}, err
	}

	updated, err := storeCall(ctx, s, "record answer", func(ctx context.Context) (domain.Participant, error) {
		return s.participants.Update(ctx, token, func(rec *domain.Participant) error {
			if _, answered := rec.AnswerFor(index); answered {
				return fmt.Errorf("%w: question %d", domain.ErrDuplicateAnswer, index)
			}
			rec.Answers = append(rec.Answers, domain.Answer{
				QuestionIndex: index,
				AnsweredAt:    now,
				IsCorrect:     correct,
				TimeTaken:     elapsed,
				Points:        points,
				Option:        option,
			})
			rec.Score += points
			rec.LastActive = now
			return nil
		})
	})
	if err != nil {
		return SubmitResult{}, err
	}

	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}
	leaderboard := Aggregate(participants)
	s.logger.Debug("answer recorded", "quiz_id", quizID, "participant_id", updated.ID, "index", index, "correct", correct, "points", points)
	s.publish(ctx, quizID, domain.Event{Type: domain.EventLeaderboardUpdate, Leaderboard: leaderboard})

	return SubmitResult{
		QuestionIndex: index,
		Correct:       correct,
		Points:        points,
		Score:         updated.Score,
		TimeTaken:     elapsed,
		Leaderboard:   leaderboard,
	}, nil
}

// EndSession force-terminates a live session and archives its results. Ending a
// session that is not live is a successful no-op that archives nothing.
func (s *QuizService) EndSession(ctx context.Context, quizID string) (domain.ArchivedSummary, error) {
	unlock := s.locks.Lock(quizID)
	defer unlock()

	session, err := s.getSession(ctx, quizID)
	if err != nil {
		return domain.ArchivedSummary{}, err
	}
	if !session.Live {
		return domain.ArchivedSummary{QuizID: quizID, Results: []domain.ArchivedResult{}}, nil
	}

	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return domain.ArchivedSummary{}, err
	}

	now := s.now()
	var summary domain.ArchivedSummary
	if _, err := s.updateSession(ctx, quizID, func(rec *domain.Session) error {
		if !rec.Live {
			return fmt.Errorf("%w: quiz %s is not live", domain.ErrInvalidState, quizID)
		}
		summary = archiveSession(rec, participants, now)
		return nil
	}); err != nil {
		return domain.ArchivedSummary{}, err
	}

	s.logger.Info("session ended", "quiz_id", quizID, "participants", len(summary.Results))
	s.mirrorArchive(ctx, summary)
	s.publish(ctx, quizID, domain.Event{Type: domain.EventSessionEnded, Summary: &summary})
	return summary, nil
}

// Connect re-attaches a participant's client and returns the current state.
func (s *QuizService) Connect(ctx context.Context, token string) (ConnectResult, error) {
	p, err := s.participantByToken(ctx, token)
	if err != nil {
		return ConnectResult{}, err
	}
	quizID := p.QuizID
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return ConnectResult{}, err
	}

	unlock := s.locks.Lock(quizID)
	defer unlock()

	session, err := s.getSession(ctx, quizID)
	if err != nil {
		return ConnectResult{}, err
	}
	if !session.Live || session.SessionCode != p.SessionCode {
		return ConnectResult{}, fmt.Errorf("%w: quiz %s is not active", domain.ErrInvalidState, quizID)
	}

	now := s.now()
	p, err = storeCall(ctx, s, "attach participant", func(ctx context.Context) (domain.Participant, error) {
		return s.participants.Update(ctx, token, func(rec *domain.Participant) error {
			rec.Connected = true
			rec.Connection++
			rec.LastActive = now
			return nil
		})
	})
	if err != nil {
		return ConnectResult{}, err
	}
	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return ConnectResult{}, err
	}

	count := countConnected(participants)
	s.publish(ctx, quizID, domain.Event{Type: domain.EventParticipantCount, Participants: &count})

	_, answered := p.AnswerFor(session.CurrentQuestionIndex)
	return ConnectResult{
		ParticipantID: p.ID,
		Name:          p.Name,
		QuizID:        quizID,
		Connection:    p.Connection,
		Score:         p.Score,
		Answered:      answered,
		State:         buildState(session, quiz, participants),
	}, nil
}

// Disconnect marks a participant offline when connection is still its latest
// attachment. A socket replaced by a newer Connect detaches as a no-op.
// Recorded answers are untouched.
func (s *QuizService) Disconnect(ctx context.Context, token string, connection int64) error {
	p, err := s.participantByToken(ctx, token)
	if err != nil {
		return err
	}
	quizID := p.QuizID

	unlock := s.locks.Lock(quizID)
	defer unlock()

	now := s.now()
	_, err = storeCall(ctx, s, "detach participant", func(ctx context.Context) (domain.Participant, error) {
		return s.participants.Update(ctx, token, func(rec *domain.Participant) error {
			if rec.Connection != connection {
				return errStaleConnection
			}
			rec.Connected = false
			rec.LastActive = now
			return nil
		})
	})
	if errors.Is(err, errStaleConnection) {
		s.logger.Debug("stale disconnect ignored", "quiz_id", quizID, "participant_id", p.ID, "connection", connection)
		return nil
	}
	if err != nil {
		return err
	}

	session, err := s.getSession(ctx, quizID)
	if err != nil || !session.Live {
		return nil
	}
	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return err
	}
	count := countConnected(participants)
	s.publish(ctx, quizID, domain.Event{Type: domain.EventParticipantCount, Participants: &count})
	return nil
}

// GetLeaderboard ranks the participants of a quiz's current or last session.
func (s *QuizService) GetLeaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	if _, err := s.getSession(ctx, quizID); err != nil {
		return nil, err
	}
	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return Aggregate(participants), nil
}

// ParticipantCount reports the connected participants of a quiz.
func (s *QuizService) ParticipantCount(ctx context.Context, quizID string) (domain.ParticipantCount, error) {
	if _, err := s.getSession(ctx, quizID); err != nil {
		return domain.ParticipantCount{}, err
	}
	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return domain.ParticipantCount{}, err
	}
	return countConnected(participants), nil
}

// SessionState returns the full view used to resync a host client.
func (s *QuizService) SessionState(ctx context.Context, quizID string) (domain.SessionState, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionState{}, err
	}
	session, err := s.getSession(ctx, quizID)
	if err != nil {
		return domain.SessionState{}, err
	}
	participants, err := s.listParticipants(ctx, quizID)
	if err != nil {
		return domain.SessionState{}, err
	}
	return buildState(session, quiz, participants), nil
}

// ArchivedResults returns every result archived for a quiz across its sessions.
// When the live store has none (expired or never archived) the reporting mirror
// is consulted.
func (s *QuizService) ArchivedResults(ctx context.Context, quizID string) ([]domain.ArchivedResult, error) {
	session, err := s.getSession(ctx, quizID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	if len(session.ArchivedResults) > 0 {
		return session.ArchivedResults, nil
	}
	if s.archive != nil {
		mirrored, merr := storeCall(ctx, s, "list archived results", func(ctx context.Context) ([]domain.ArchivedResult, error) {
			return s.archive.ListResults(ctx, quizID)
		})
		if merr != nil {
			return nil, merr
		}
		if len(mirrored) > 0 {
			return mirrored, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return []domain.ArchivedResult{}, nil
}

// NormalizeCode canonicalizes a user-entered session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func buildState(session domain.Session, quiz domain.Quiz, participants []domain.Participant) domain.SessionState {
	state := domain.SessionState{
		QuizID:               session.QuizID,
		Live:                 session.Live,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		QuestionCount:        len(quiz.Questions),
		Leaderboard:          Aggregate(participants),
	}
	if session.QuestionOpen() && session.CurrentQuestionIndex < len(quiz.Questions) {
		view := domain.NewQuestionView(quiz, session.CurrentQuestionIndex, session.QuestionStartTime)
		state.Question = &view
	}
	return state
}

func nextJoinSeq(participants []domain.Participant) int64 {
	var last int64
	for _, p := range participants {
		if p.JoinSeq > last {
			last = p.JoinSeq
		}
	}
	return last + 1
}

// storeCall bounds a store call by the configured timeout. A timeout that did not
// come from the caller's own context surfaces as domain.ErrStoreUnavailable.
func storeCall[T any](ctx context.Context, s *QuizService, op string, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	v, err := fn(sctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return v, fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return v, err
}

func (s *QuizService) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := storeCall(ctx, s, "load quiz", func(ctx context.Context) (domain.Quiz, error) {
		return s.quizzes.GetQuiz(ctx, quizID)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (s *QuizService) getSession(ctx context.Context, quizID string) (domain.Session, error) {
	return storeCall(ctx, s, "get session", func(ctx context.Context) (domain.Session, error) {
		return s.sessions.Get(ctx, quizID)
	})
}

func (s *QuizService) updateSession(ctx context.Context, quizID string, fn func(*domain.Session) error) (domain.Session, error) {
	return storeCall(ctx, s, "update session", func(ctx context.Context) (domain.Session, error) {
		return s.sessions.Update(ctx, quizID, fn)
	})
}

func (s *QuizService) participantByToken(ctx context.Context, token string) (domain.Participant, error) {
	if token == "" {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return storeCall(ctx, s, "get participant", func(ctx context.Context) (domain.Participant, error) {
		return s.participants.GetByToken(ctx, token)
	})
}

func (s *QuizService) listParticipants(ctx context.Context, quizID string) ([]domain.Participant, error) {
	return storeCall(ctx, s, "list participants", func(ctx context.Context) ([]domain.Participant, error) {
		return s.participants.ListBySession(ctx, quizID)
	})
}

// mirrorArchive copies a summary to the reporting store. The session record is the
// source of truth, so a failure here is only logged.
func (s *QuizService) mirrorArchive(ctx context.Context, summary domain.ArchivedSummary) {
	if s.archive == nil {
		return
	}
	if _, err := storeCall(ctx, s, "save archive", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.archive.SaveSummary(ctx, summary)
	}); err != nil {
		s.logger.Error("archive mirror failed", "quiz_id", summary.QuizID, "error", err)
	}
}
