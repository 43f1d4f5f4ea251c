package app

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

type mapRoomStore struct{ rooms map[string]*Room }

func newMapRoomStore() *mapRoomStore {
	return &mapRoomStore{rooms: make(map[string]*Room)}
}

func (s *mapRoomStore) GetOrCreate(roomID string, create func() *Room) *Room {
	if room, ok := s.rooms[roomID]; ok {
		return room
	}
	room := create()
	s.rooms[roomID] = room
	return room
}

func (s *mapRoomStore) Get(roomID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *mapRoomStore) Delete(roomID string) { delete(s.rooms, roomID) }

type fixedQuizzes struct{ quiz domain.Quiz }

func (q fixedQuizzes) GetQuiz(context.Context, string) (domain.Quiz, error) {
	return q.quiz, nil
}

// yankVerifier tears down a chosen connection during token verification,
// reproducing a transport disconnect racing the auth handshake.
type yankVerifier struct {
	coordinator *Coordinator
	yankConnID  string
}

func (v *yankVerifier) Verify(string) (auth.Claims, error) {
	if v.yankConnID != "" {
		v.coordinator.registry.Unregister(v.yankConnID)
	}
	return auth.Claims{UserID: "u1", DisplayName: "Alice"}, nil
}

func TestAuthRollbackKeepsOtherTabConnected(t *testing.T) {
	quiz := domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{ID: "q1", Text: "1+1?", Options: []string{"1", "2"}, Correct: 1},
		},
	}
	rooms := newMapRoomStore()
	verifier := &yankVerifier{}
	c := NewCoordinator(rooms, fixedQuizzes{quiz: quiz}, verifier, Options{AnswerWindow: time.Minute})
	verifier.coordinator = c

	first := c.Connect("quiz-1", nopSink{name: "tab1"})
	if err := c.Authenticate(context.Background(), first, "token"); err != nil {
		t.Fatalf("authenticate first tab: %v", err)
	}

	// The second tab's connection dies mid-handshake; binding it fails and
	// the rollback must not touch the identity's live connection.
	second := c.Connect("quiz-1", nopSink{name: "tab2"})
	verifier.yankConnID = second
	if err := c.Authenticate(context.Background(), second, "token"); err == nil {
		t.Fatalf("expected bind failure for torn-down connection")
	}

	room, ok := rooms.Get("quiz-1")
	if !ok {
		t.Fatalf("expected room")
	}
	room.mu.Lock()
	_, connected := room.connected["u1"]
	room.mu.Unlock()
	if !connected {
		t.Fatalf("rollback disconnected an identity that still has a live connection")
	}
}
