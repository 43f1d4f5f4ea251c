package domain

import "errors"

var (
	// ErrUnauthenticated is returned when a connection acts before presenting
	// a valid credential, or presents an invalid one.
	ErrUnauthenticated = errors.New("connection not authenticated")
	// ErrRoomClosed is returned for joins or answers against a finished room.
	ErrRoomClosed = errors.New("room is closed")
	// ErrAlreadyStarted is returned when start is issued outside the lobby.
	ErrAlreadyStarted = errors.New("room already started")
	// ErrEmptyRoom is returned when start is issued with an empty roster.
	ErrEmptyRoom = errors.New("room has no participants")
	// ErrStaleQuestion is returned for answers targeting anything other than
	// the room's current question.
	ErrStaleQuestion = errors.New("question is not current")
	// ErrWindowClosed is returned for answers after the collection window.
	ErrWindowClosed = errors.New("answer window closed")
	// ErrInvalidOption is returned when the chosen option index is out of range.
	ErrInvalidOption = errors.New("option out of range")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrRoomNotFound is returned when a room has not been created.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz rejects quiz content with no questions; such a quiz can
	// never open a question and must not create a room.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrAlreadyAuthenticated is returned when a bound connection presents a
	// second credential.
	ErrAlreadyAuthenticated = errors.New("connection already authenticated")
)
