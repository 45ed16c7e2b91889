package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every "unknown quiz/session/participant/code" failure.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation is not valid in the session's lifecycle state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrLateOrInvalid rejects answers past the time limit or referencing an unknown option.
	ErrLateOrInvalid = errors.New("late or invalid answer")
	// ErrDuplicateAnswer is returned for a second submission on an already answered question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrStoreUnavailable marks a transient persistence failure; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConflict marks a lost optimistic write; callers may retry.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrInvalidArgument is returned for malformed input such as an empty display name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrSessionNotFound is returned when no session matches a quiz id or session code.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a token does not resolve to a participant.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrInvalidQuiz flags a quiz definition that cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
)

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrConflict)
}
