package domain

import "time"

// RoomState is the lifecycle phase of a quiz room.
type RoomState string

const (
	RoomLobby      RoomState = "lobby"
	RoomInProgress RoomState = "in_progress"
	RoomFinished   RoomState = "finished"
)

// Question models an MCQ question. Correct is the index into Options and is
// never sent to clients while the question is open.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Correct int      `json:"correct"`
}

// Quiz is the immutable question list a room plays through.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Participant is a user identity inside a room, independent of any single
// transport connection. Leaving clears connectivity, not the record.
type Participant struct {
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

// Answer is one participant's submission for one question. At most one
// exists per (participant, question); resubmission before the window closes
// overwrites it.
type Answer struct {
	UserID      string
	QuestionID  string
	Option      int
	SubmittedAt time.Time
}

// ScoreEntry is a participant's final outcome. Derived once when the room
// finishes and never mutated afterwards.
type ScoreEntry struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	Score            int       `json:"score"`
	CorrectCount     int       `json:"correct_count"`
	TotalQuestions   int       `json:"total_questions"`
	TimeTakenSeconds int64     `json:"time_taken"`
	FinishedAt       time.Time `json:"finished_at"`
}
