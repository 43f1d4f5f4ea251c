package app

import (
	"time"

	"live-quiz-service/internal/domain"
)

// ledger collects answers for one room: at most one per (participant,
// question), resubmission overwrites until the window closes. It is owned by
// exactly one Room and relies on the Room's lock for synchronization.
type ledger struct {
	// questionID -> userID -> answer
	answers map[string]map[string]domain.Answer
	// eligible set captured when each question opened
	eligible map[string]map[string]struct{}
}

func newLedger() *ledger {
	return &ledger{
		answers:  make(map[string]map[string]domain.Answer),
		eligible: make(map[string]map[string]struct{}),
	}
}

// open captures the participants connected at the moment the question is
// broadcast; they form the completion set for advance-early.
func (l *ledger) open(questionID string, connected map[string]struct{}) {
	set := make(map[string]struct{}, len(connected))
	for userID := range connected {
		set[userID] = struct{}{}
	}
	l.eligible[questionID] = set
	if _, ok := l.answers[questionID]; !ok {
		l.answers[questionID] = make(map[string]domain.Answer)
	}
}

func (l *ledger) record(questionID, userID string, option int, now time.Time) {
	byUser, ok := l.answers[questionID]
	if !ok {
		byUser = make(map[string]domain.Answer)
		l.answers[questionID] = byUser
	}
	byUser[userID] = domain.Answer{
		UserID:      userID,
		QuestionID:  questionID,
		Option:      option,
		SubmittedAt: now,
	}
}

// isComplete reports whether every eligible participant still connected has
// a recorded answer for the question. Disconnected participants drop out of
// the pending set so they cannot block advancement.
func (l *ledger) isComplete(questionID string, connected func(userID string) bool) bool {
	eligible, ok := l.eligible[questionID]
	if !ok {
		return false
	}
	byUser := l.answers[questionID]
	for userID := range eligible {
		if !connected(userID) {
			continue
		}
		if _, answered := byUser[userID]; !answered {
			return false
		}
	}
	return true
}

// answersFor returns the participant's answers keyed by question ID.
func (l *ledger) answersFor(userID string) map[string]domain.Answer {
	result := make(map[string]domain.Answer)
	for questionID, byUser := range l.answers {
		if answer, ok := byUser[userID]; ok {
			result[questionID] = answer
		}
	}
	return result
}
