package app

import (
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
)

// Room is the authoritative state machine for one live quiz session:
// lobby -> in_progress -> finished. It owns the question cursor, the shared
// deadline, the roster, and the answer ledger. All mutation happens under
// r.mu; the coordinator holds the lock across a transition and its fan-out
// so broadcast order always matches transition order.
type Room struct {
	mu sync.Mutex

	id     string
	quiz   domain.Quiz
	window time.Duration
	now    func() time.Time

	state     domain.RoomState
	cursor    int
	startedAt time.Time
	deadline  time.Time
	roster    map[string]*domain.Participant
	connected map[string]struct{}
	ledger    *ledger
	results   []domain.ScoreEntry
}

func NewRoom(id string, quiz domain.Quiz, window time.Duration) *Room {
	return NewRoomWithClock(id, quiz, window, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(id string, quiz domain.Quiz, window time.Duration, now func() time.Time) *Room {
	return &Room{
		id:        id,
		quiz:      quiz,
		window:    window,
		now:       now,
		state:     domain.RoomLobby,
		cursor:    -1,
		roster:    make(map[string]*domain.Participant),
		connected: make(map[string]struct{}),
		ledger:    newLedger(),
	}
}

func (r *Room) ID() string { return r.id }

// State returns the current lifecycle phase.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Results returns the ranked score entries of a finished room.
func (r *Room) Results() []domain.ScoreEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ScoreEntry, len(r.results))
	copy(out, r.results)
	return out
}

// join admits or reconnects a participant. The roster never shrinks while
// the room lives: rejoining with the same user ID reuses the record. The
// returned flag is true when the identity went from disconnected to
// connected, i.e. a join broadcast is due.
func (r *Room) join(userID, displayName string) (bool, error) {
	if r.state == domain.RoomFinished {
		return false, domain.ErrRoomClosed
	}

	if participant, ok := r.roster[userID]; ok {
		if displayName != "" {
			participant.DisplayName = displayName
		}
	} else {
		r.roster[userID] = &domain.Participant{
			UserID:      userID,
			DisplayName: displayName,
			JoinedAt:    r.now(),
		}
	}

	if _, ok := r.connected[userID]; ok {
		return false, nil
	}
	r.connected[userID] = struct{}{}
	return true, nil
}

// disconnect clears connectivity but keeps the participant record. The
// returned flag is true when no other connection represents the identity
// and a leave broadcast is due.
func (r *Room) disconnect(userID string) bool {
	if _, ok := r.connected[userID]; !ok {
		return false
	}
	delete(r.connected, userID)
	return true
}

// start moves the room into play and opens the first question.
func (r *Room) start() ([]protocol.Outbound, error) {
	if r.state != domain.RoomLobby {
		return nil, domain.ErrAlreadyStarted
	}
	if len(r.roster) == 0 {
		return nil, domain.ErrEmptyRoom
	}
	if len(r.quiz.Questions) == 0 {
		return nil, domain.ErrEmptyQuiz
	}

	r.state = domain.RoomInProgress
	r.startedAt = r.now()
	r.cursor = 0
	return []protocol.Outbound{r.openQuestion()}, nil
}

// openQuestion arms the shared wall-clock deadline and snapshots the
// connected participants as the question's completion set.
func (r *Room) openQuestion() protocol.Outbound {
	question := r.quiz.Questions[r.cursor]
	r.deadline = r.now().Add(r.window)
	r.ledger.open(question.ID, r.connected)
	return protocol.Outbound{
		Type: protocol.TypeQuestion,
		Content: protocol.QuestionContent{
			ID:      question.ID,
			Text:    question.Text,
			Options: question.Options,
		},
	}
}

// currentQuestionMessage replays the open question to one late joiner.
func (r *Room) currentQuestionMessage() (protocol.Outbound, bool) {
	if r.state != domain.RoomInProgress {
		return protocol.Outbound{}, false
	}
	question := r.quiz.Questions[r.cursor]
	return protocol.Outbound{
		Type: protocol.TypeQuestion,
		Content: protocol.QuestionContent{
			ID:      question.ID,
			Text:    question.Text,
			Options: question.Options,
		},
	}, true
}

// recordAnswer stores a submission for the current question. Resubmission
// before the deadline overwrites. The returned flag reports whether every
// connected eligible participant has now answered.
func (r *Room) recordAnswer(userID, questionID string, option int) (bool, error) {
	switch r.state {
	case domain.RoomFinished:
		return false, domain.ErrRoomClosed
	case domain.RoomLobby:
		return false, domain.ErrStaleQuestion
	}

	if _, ok := r.roster[userID]; !ok {
		return false, domain.ErrParticipantNotFound
	}

	current := r.quiz.Questions[r.cursor]
	if questionID != current.ID {
		return false, domain.ErrStaleQuestion
	}
	now := r.now()
	if now.After(r.deadline) {
		return false, domain.ErrWindowClosed
	}
	if option < 0 || option >= len(current.Options) {
		return false, domain.ErrInvalidOption
	}

	r.ledger.record(current.ID, userID, option, now)
	return r.currentComplete(), nil
}

func (r *Room) currentComplete() bool {
	if r.state != domain.RoomInProgress {
		return false
	}
	current := r.quiz.Questions[r.cursor]
	return r.ledger.isComplete(current.ID, func(userID string) bool {
		_, ok := r.connected[userID]
		return ok
	})
}

// advance moves the cursor forward one position. The expected cursor guards
// against stale deadline timers firing after an advance-on-complete; such
// calls are no-ops. The cursor never regresses.
func (r *Room) advance(expectedCursor int) (events []protocol.Outbound, finished, advanced bool) {
	if r.state != domain.RoomInProgress || r.cursor != expectedCursor {
		return nil, false, false
	}

	r.cursor++
	if r.cursor < len(r.quiz.Questions) {
		return []protocol.Outbound{r.openQuestion()}, false, true
	}
	return r.finish(), true, true
}

// finish scores every participant on the roster (connected or not), emits a
// ranked result per participant with the last flagged final, then the
// room-wide summary.
func (r *Room) finish() []protocol.Outbound {
	r.state = domain.RoomFinished
	finishedAt := r.now()

	entries := make([]domain.ScoreEntry, 0, len(r.roster))
	for _, participant := range r.roster {
		answers := r.ledger.answersFor(participant.UserID)
		entries = append(entries, ComputeScore(*participant, r.quiz.Questions, answers, r.startedAt, finishedAt))
	}
	r.results = RankEntries(entries)

	events := make([]protocol.Outbound, 0, len(r.results)+1)
	summary := protocol.SummaryContent{Entries: make([]protocol.SummaryEntry, 0, len(r.results))}
	for i, entry := range r.results {
		events = append(events, protocol.Outbound{
			Type: protocol.TypeResult,
			Content: protocol.ResultContent{
				UserID: entry.UserID,
				Score:  entry.Score,
				Time:   entry.TimeTakenSeconds,
				Final:  i == len(r.results)-1,
			},
		})
		summary.Entries = append(summary.Entries, protocol.SummaryEntry{
			UserID:      entry.UserID,
			DisplayName: entry.DisplayName,
			Score:       entry.Score,
			Time:        entry.TimeTakenSeconds,
		})
	}
	return append(events, protocol.Outbound{Type: protocol.TypeSummary, Content: summary})
}
