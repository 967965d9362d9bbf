package messaging

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientSendBuffer = 64

type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type clientCommand struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Hub is the websocket connection layer. Every authenticated connection is
// subscribed to its user's private room; clients join and leave chat rooms
// explicitly. Publish fans an event out to every connection in a room.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

var _ Publisher = (*Hub)(nil)

type client struct {
	conn     *websocket.Conn
	send     chan envelope
	userRoom string
	rooms    map[string]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		rooms:  make(map[string]map[*client]struct{}),
	}
}

// Publish fans out under the read lock; drop holds the write lock while it
// closes a client's channel, so no send can race a close.
func (h *Hub) Publish(room string, event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- envelope{Event: event, Payload: payload}:
		default:
			// Slow consumer. Drop the event rather than stall the session.
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("room", room),
				zap.String("event", event))
		}
	}
}

// HandleWS upgrades the connection and runs its read loop. The identity
// middleware has already attached the caller's identity.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity := core.Identity(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan envelope, clientSendBuffer),
		userRoom: UserRoom(identity.UserID),
		rooms:    make(map[string]struct{}),
	}

	h.join(c, c.userRoom)

	go h.writePump(c)
	h.readPump(c)
}

// canJoin guards client-initiated joins. Chat rooms are open; a user_ room
// only admits its owner.
func canJoin(room, ownRoom string) bool {
	if strings.HasPrefix(room, "user_") {
		return room == ownRoom
	}

	return true
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *client, room string) {
	if subscribers, ok := h.rooms[room]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range c.rooms {
		h.leaveLocked(c, room)
	}

	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var command clientCommand
		if err := json.Unmarshal(message, &command); err != nil {
			h.logger.Warn("discarding malformed client command", zap.Error(err))
			continue
		}

		switch command.Action {
		case "join_room":
			if command.Room == "" {
				continue
			}
			if !canJoin(command.Room, c.userRoom) {
				h.logger.Warn("rejecting join to private room", zap.String("room", command.Room))
				continue
			}
			h.join(c, command.Room)
		case "leave_room":
			if command.Room != "" {
				h.leave(c, command.Room)
			}
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}
