package http

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
)

type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// client adapts one websocket connection to an app.Sink: a buffered send
// channel drained by a single writer goroutine, so broadcasts never write
// concurrently and a slow client is dropped instead of blocking its room.
type client struct {
	conn *websocket.Conn
	send chan protocol.Outbound

	closeMu sync.Mutex
	closed  bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan protocol.Outbound, 16),
	}
}

func (c *client) Send(msg protocol.Outbound) bool {
	// A broadcast snapshot can race connection teardown; the closed flag
	// keeps sends off the closed channel.
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) writeLoop(done chan<- struct{}) {
	defer close(done)
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			zap.L().Debug("ws write error", zap.Error(err))
			return
		}
	}
}

// ServeWS upgrades HTTP requests to websockets scoped to one room. The
// first frame must be auth; everything else is routed to the coordinator
// and errors are reported to this client only.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := newClient(conn)
	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)

	connID := h.coordinator.Connect(roomID, c)
	h.readLoop(r, c, connID)

	h.coordinator.Disconnect(connID)
	c.closeSend()
	<-writerDone
}

func (h *WSHandler) readLoop(r *http.Request, c *client, connID string) {
	authenticated := false
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		inbound, err := protocol.Decode(data)
		if err != nil {
			// Unknown types and malformed frames fail soft: the room and
			// the connection both survive one bad message.
			if errors.Is(err, protocol.ErrUnknownType) {
				zap.L().Debug("ignoring unknown message type", zap.Error(err))
			} else {
				c.Send(protocol.ErrorMessage(err))
			}
			continue
		}

		switch msg := inbound.(type) {
		case protocol.Auth:
			if err := h.coordinator.Authenticate(r.Context(), connID, msg.Token); err != nil {
				c.Send(protocol.ErrorMessage(err))
				if errors.Is(err, domain.ErrUnauthenticated) {
					// A connection that cannot authenticate is rejected.
					return
				}
			} else {
				authenticated = true
			}
		case protocol.Start:
			if !authenticated {
				c.Send(protocol.ErrorMessage(domain.ErrUnauthenticated))
				return
			}
			if err := h.coordinator.Start(connID); err != nil {
				c.Send(protocol.ErrorMessage(err))
			}
		case protocol.Answer:
			if !authenticated {
				c.Send(protocol.ErrorMessage(domain.ErrUnauthenticated))
				return
			}
			if err := h.coordinator.SubmitAnswer(connID, msg.QuestionID, msg.Option); err != nil {
				c.Send(protocol.ErrorMessage(err))
			}
		case protocol.Leave:
			return
		}
	}
}
