// Package protocol defines the JSON wire contract shared by the transport
// and the session coordinator: a {type, content} envelope in both directions.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"live-quiz-service/internal/domain"
)

const (
	TypeAuth     = "auth"
	TypeStart    = "start"
	TypeAnswer   = "answer"
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeQuestion = "question"
	TypeResult   = "result"
	TypeSummary  = "summary"
	TypeError    = "error"
)

// Envelope is the raw wire frame.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Outbound is a server-to-client message ready for marshaling.
type Outbound struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

type JoinContent struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type LeaveContent struct {
	UserID string `json:"user_id"`
}

type QuestionContent struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type ResultContent struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Time   int64  `json:"time"`
	Final  bool   `json:"final"`
}

type SummaryEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
}

type SummaryContent struct {
	Entries []SummaryEntry `json:"entries"`
}

type ErrorContent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Inbound is the tagged variant decoded from a client frame. One case per
// client-to-server wire type.
type Inbound interface{ inbound() }

type Auth struct {
	Token string `json:"token"`
}

type Start struct{}

type Answer struct {
	QuestionID string `json:"question_id"`
	Option     int    `json:"answer"`
}

type Leave struct{}

func (Auth) inbound()   {}
func (Start) inbound()  {}
func (Answer) inbound() {}
func (Leave) inbound()  {}

// ErrUnknownType marks frames with an unrecognized type. Callers log and
// ignore these rather than failing the connection.
var ErrUnknownType = errors.New("unknown message type")

// Decode parses a client frame into its tagged variant.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeAuth:
		var msg Auth
		if err := json.Unmarshal(env.Content, &msg); err != nil {
			return nil, fmt.Errorf("decode auth: %w", err)
		}
		return msg, nil
	case TypeStart:
		return Start{}, nil
	case TypeAnswer:
		var msg Answer
		if err := json.Unmarshal(env.Content, &msg); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		return msg, nil
	case TypeLeave:
		return Leave{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// ErrorCode maps a domain error to its wire code. Unrecognized errors map
// to "internal" so sentinel details never leak verbatim.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrRoomClosed):
		return "room_closed"
	case errors.Is(err, domain.ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, domain.ErrEmptyRoom):
		return "empty_room"
	case errors.Is(err, domain.ErrStaleQuestion):
		return "stale_question"
	case errors.Is(err, domain.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, domain.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, domain.ErrParticipantNotFound):
		return "not_joined"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quiz_not_found"
	case errors.Is(err, domain.ErrEmptyQuiz):
		return "empty_quiz"
	case errors.Is(err, domain.ErrAlreadyAuthenticated):
		return "already_authenticated"
	default:
		return "internal"
	}
}

// ErrorMessage builds the error frame sent to the originating client only.
func ErrorMessage(err error) Outbound {
	return Outbound{Type: TypeError, Content: ErrorContent{Code: ErrorCode(err), Message: err.Error()}}
}
