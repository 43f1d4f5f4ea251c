package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
)

// RoomStore abstracts how live rooms are tracked (in-memory, Redis-marked).
type RoomStore interface {
	GetOrCreate(roomID string, create func() *Room) *Room
	Get(roomID string) (*Room, bool)
	Delete(roomID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsStore accepts finished score entries for durable ranking. Handed a
// copy; failures are logged, never surfaced into the room.
type ResultsStore interface {
	SaveResults(ctx context.Context, roomID string, entries []domain.ScoreEntry) error
}

// Options tunes room timing. Zero values fall back to defaults.
type Options struct {
	AnswerWindow time.Duration
	LobbyTimeout time.Duration
	FinishGrace  time.Duration
}

func (o Options) withDefaults() Options {
	if o.AnswerWindow <= 0 {
		o.AnswerWindow = 30 * time.Second
	}
	if o.LobbyTimeout <= 0 {
		o.LobbyTimeout = 5 * time.Minute
	}
	if o.FinishGrace <= 0 {
		o.FinishGrace = time.Minute
	}
	return o
}

// Coordinator routes inbound events to the owning room, serializes all
// mutation of a room's state, schedules deadline and lifecycle timers, and
// is the sole writer broadcasting outbound messages. A room's lock is held
// across each transition and its fan-out, so clients observe transitions in
// the order they occurred; rooms are fully independent of each other.
type Coordinator struct {
	rooms    RoomStore
	quizzes  QuizRepository
	results  []ResultsStore
	verifier auth.Verifier
	registry *Registry
	opts     Options
}

func NewCoordinator(rooms RoomStore, quizzes QuizRepository, verifier auth.Verifier, opts Options, results ...ResultsStore) *Coordinator {
	return &Coordinator{
		rooms:    rooms,
		quizzes:  quizzes,
		results:  results,
		verifier: verifier,
		registry: NewRegistry(),
		opts:     opts.withDefaults(),
	}
}

// Connect registers a transport connection for a room. The connection
// receives nothing until it authenticates.
func (c *Coordinator) Connect(roomID string, sink Sink) string {
	return c.registry.Register(roomID, sink)
}

// Authenticate validates the credential presented as the connection's first
// message, binds the identity, admits it to the room (creating the room on
// first join), and replays the open question to late joiners. Reconnecting
// while another connection still represents the identity emits no duplicate
// join broadcast.
func (c *Coordinator) Authenticate(ctx context.Context, connID, token string) error {
	roomID, boundUser, ok := c.registry.Lookup(connID)
	if !ok {
		return domain.ErrUnauthenticated
	}
	// A bound connection keeps its identity; re-authenticating would strand
	// the old identity in the room's connected set.
	if boundUser != "" {
		return domain.ErrAlreadyAuthenticated
	}

	claims, err := c.verifier.Verify(token)
	if err != nil {
		return err
	}

	// Rooms are keyed by quiz ID; joining an unknown quiz fails here.
	quiz, err := c.quizzes.GetQuiz(ctx, roomID)
	if err != nil {
		return err
	}
	if len(quiz.Questions) == 0 {
		return domain.ErrEmptyQuiz
	}

	created := false
	room := c.rooms.GetOrCreate(roomID, func() *Room {
		created = true
		return NewRoom(roomID, quiz, c.opts.AnswerWindow)
	})
	if created {
		time.AfterFunc(c.opts.LobbyTimeout, func() { c.onLobbyTimeout(roomID) })
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	firstConn, err := room.join(claims.UserID, claims.DisplayName)
	if err != nil {
		return err
	}
	if err := c.registry.Bind(connID, claims.UserID); err != nil {
		// Roll back only the connectivity this join introduced; another
		// connection may still represent the identity.
		if firstConn {
			room.disconnect(claims.UserID)
		}
		return err
	}

	if firstConn {
		c.fanOut(roomID, []protocol.Outbound{{
			Type:    protocol.TypeJoin,
			Content: protocol.JoinContent{UserID: claims.UserID, DisplayName: claims.DisplayName},
		}})
	}
	if question, open := room.currentQuestionMessage(); open {
		if sink := c.registry.SinkFor(connID); sink != nil {
			sink.Send(question)
		}
	}
	return nil
}

// Start moves a lobby room into play and arms the first deadline.
func (c *Coordinator) Start(connID string) error {
	room, _, err := c.boundRoom(connID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	events, err := room.start()
	if err != nil {
		return err
	}
	c.fanOut(room.id, events)
	c.armDeadline(room.id, room.cursor)
	zap.L().Info("room started",
		zap.String("room", room.id),
		zap.Int("questions", len(room.quiz.Questions)),
		zap.Int("participants", len(room.roster)))
	return nil
}

// SubmitAnswer records a submission for the room's current question and
// advances immediately once every connected participant has answered.
func (c *Coordinator) SubmitAnswer(connID, questionID string, option int) error {
	room, userID, err := c.boundRoom(connID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	complete, err := room.recordAnswer(userID, questionID, option)
	if err != nil {
		return err
	}
	if complete {
		c.advanceLocked(room, room.cursor)
	}
	return nil
}

// Disconnect drops a transport connection. When it was the identity's last,
// the participant goes disconnected (leave broadcast) but stays on the
// roster; their missing answers score as incorrect. Never fatal to the room.
func (c *Coordinator) Disconnect(connID string) {
	roomID, userID, last := c.registry.Unregister(connID)
	if roomID == "" || !last || userID == "" {
		return
	}
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.disconnect(userID) {
		return
	}
	c.fanOut(roomID, []protocol.Outbound{{
		Type:    protocol.TypeLeave,
		Content: protocol.LeaveContent{UserID: userID},
	}})
	// Departure may leave the current question fully answered.
	if room.currentComplete() {
		c.advanceLocked(room, room.cursor)
	}
}

// onDeadline fires when a question's answer window elapses. The cursor
// guard makes timers that lost the race against advance-on-complete no-ops.
func (c *Coordinator) onDeadline(roomID string, cursor int) {
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	c.advanceLocked(room, cursor)
}

// advanceLocked runs a cursor transition and its fan-out under the room
// lock, then arms the next deadline or kicks off result persistence.
func (c *Coordinator) advanceLocked(room *Room, cursor int) {
	events, finished, advanced := room.advance(cursor)
	if !advanced {
		return
	}
	c.fanOut(room.id, events)
	if finished {
		entries := make([]domain.ScoreEntry, len(room.results))
		copy(entries, room.results)
		go c.persistResults(room.id, entries)
		time.AfterFunc(c.opts.FinishGrace, func() { c.rooms.Delete(room.id) })
		zap.L().Info("room finished", zap.String("room", room.id), zap.Int("participants", len(entries)))
		return
	}
	c.armDeadline(room.id, room.cursor)
}

func (c *Coordinator) armDeadline(roomID string, cursor int) {
	time.AfterFunc(c.opts.AnswerWindow, func() { c.onDeadline(roomID, cursor) })
}

func (c *Coordinator) onLobbyTimeout(roomID string) {
	room, ok := c.rooms.Get(roomID)
	if !ok || room.State() != domain.RoomLobby {
		return
	}
	if c.registry.HasConnections(roomID) {
		time.AfterFunc(c.opts.LobbyTimeout, func() { c.onLobbyTimeout(roomID) })
		return
	}
	c.rooms.Delete(roomID)
	zap.L().Info("idle lobby destroyed", zap.String("room", roomID))
}

// persistResults hands finished entries to every results store. Best effort:
// a store failure is logged and never reaches participants.
func (c *Coordinator) persistResults(roomID string, entries []domain.ScoreEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, store := range c.results {
		if err := store.SaveResults(ctx, roomID, entries); err != nil {
			zap.L().Warn("persist results failed", zap.String("room", roomID), zap.Error(err))
		}
	}
}

// fanOut delivers events in order to every authenticated connection in the
// room. Callers hold the room lock, so concurrent transitions cannot
// interleave their broadcasts.
func (c *Coordinator) fanOut(roomID string, events []protocol.Outbound) {
	sinks := c.registry.BoundSinks(roomID)
	for _, event := range events {
		for _, sink := range sinks {
			if !sink.Send(event) {
				zap.L().Warn("dropping message for slow client", zap.String("room", roomID), zap.String("type", event.Type))
			}
		}
	}
}

func (c *Coordinator) boundRoom(connID string) (*Room, string, error) {
	roomID, userID, ok := c.registry.Lookup(connID)
	if !ok || userID == "" {
		return nil, "", domain.ErrUnauthenticated
	}
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return nil, "", domain.ErrRoomNotFound
	}
	return room, userID, nil
}
