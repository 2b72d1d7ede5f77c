package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/logger"
)

// Directory answers the membership questions the hub needs. Implemented
// by the room service; re-evaluated on every subscribe, never cached.
type Directory interface {
	// CanSubscribe returns nil when the identity may read the room,
	// apperr.ErrForbidden or apperr.ErrNotFound otherwise.
	CanSubscribe(ctx context.Context, userID, roomID string) error
	// MemberRoomIDs lists the rooms the identity belongs to, for
	// presence fan-out on connect/disconnect.
	MemberRoomIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceStore records online/offline transitions and heartbeats.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Hub maintains, per room, the set of currently subscribed sessions and
// fans room events out to them. Delivery is best-effort: a session whose
// send buffer is full is closed and reconciles via history refetch.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	byUser map[string]map[*Client]struct{}
	total  int

	maxConns  int
	directory Directory
	presence  PresenceStore
	typing    *stateLimiter

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(directory Directory, presence PresenceStore, maxConns int, typingWindow time.Duration) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	if typingWindow <= 0 {
		typingWindow = 2 * time.Second
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		directory:  directory,
		presence:   presence,
		typing:     newStateLimiter(typingWindow),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// SetDirectory wires the room directory. The hub and the room service
// reference each other, so one side is attached after construction.
// Must be called before Run.
func (h *Hub) SetDirectory(d Directory) {
	h.directory = d
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.byUser {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.byUser = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.byUser[c.userID]; !ok {
		h.byUser[c.userID] = make(map[*Client]struct{})
	}
	h.byUser[c.userID][c] = struct{}{}
	h.total++
	firstClient := len(h.byUser[c.userID]) == 1
	h.mu.Unlock()

	if firstClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.SetOnline(ctx, c.userID, true); err != nil {
			logger.Errorf("ws set online user=%s: %v", c.userID, err)
		}
		h.broadcastPresence(c.userID, true)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.byUser[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.byUser, c.userID)
	}
	// A closing connection deterministically releases every room it held.
	heldRooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		h.dropFromRoomLocked(roomID, c)
		heldRooms = append(heldRooms, roomID)
	}
	c.rooms = make(map[string]struct{})
	h.mu.Unlock()

	// Drop the typing-limiter entries too, or they accumulate for
	// sessions that vanish without unsubscribing.
	for _, roomID := range heldRooms {
		h.typing.forget(typingKey(c.userID, roomID))
	}

	// Network I/O outside the lock.
	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.SetOnline(ctx, c.userID, false); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
		h.broadcastPresence(c.userID, false)
	}
}

func (h *Hub) dropFromRoomLocked(roomID string, c *Client) {
	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// HandleFrame dispatches an inbound session frame.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, frame Frame) {
	switch frame.Type {
	case "subscribe":
		h.handleSubscribe(ctx, c, frame.RoomID)
	case "unsubscribe":
		h.Unsubscribe(c, frame.RoomID)
	case "typing":
		h.handleTyping(c, frame.RoomID, frame.Typing)
	case "heartbeat":
		h.handleHeartbeat(ctx, c)
	default:
		h.sendToClient(c, Event{Type: EventError, Payload: "unknown frame type"})
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, roomID string) {
	if roomID == "" {
		h.sendToClient(c, Event{Type: EventError, Payload: "room_id required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.directory.CanSubscribe(ctx, c.userID, roomID); err != nil {
		switch {
		case errors.Is(err, apperr.ErrForbidden):
			h.sendToClient(c, Event{Type: EventError, RoomID: roomID, Payload: "not permitted"})
		case errors.Is(err, apperr.ErrNotFound):
			h.sendToClient(c, Event{Type: EventError, RoomID: roomID, Payload: "room not found"})
		default:
			logger.Errorf("ws subscribe room=%s user=%s: %v", roomID, c.userID, err)
			h.sendToClient(c, Event{Type: EventError, RoomID: roomID, Payload: "internal error"})
		}
		return
	}

	h.mu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	c.rooms[roomID] = struct{}{}
	h.mu.Unlock()

	h.sendToClient(c, Event{Type: EventSubscribed, RoomID: roomID})
}

// Unsubscribe removes the session from a room's subscription set.
func (h *Hub) Unsubscribe(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	h.mu.Lock()
	h.dropFromRoomLocked(roomID, c)
	delete(c.rooms, roomID)
	h.mu.Unlock()
	h.typing.forget(typingKey(c.userID, roomID))
}

func (h *Hub) handleTyping(c *Client, roomID string, typing bool) {
	if roomID == "" {
		return
	}
	h.mu.RLock()
	_, subscribed := c.rooms[roomID]
	h.mu.RUnlock()
	if !subscribed {
		return
	}
	// Lossy by design: bursts collapse to the latest state per (user, room).
	if !h.typing.allow(typingKey(c.userID, roomID), typing) {
		return
	}
	h.Publish(roomID, Event{
		Type:   EventTypingChanged,
		RoomID: roomID,
		Payload: TypingChangedPayload{
			RoomID: roomID,
			UserID: c.userID,
			Typing: typing,
		},
	})
}

func (h *Hub) handleHeartbeat(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	// Heartbeats always bump last_seen, even when already online.
	if err := h.presence.SetOnline(ctx, c.userID, true); err != nil {
		logger.Errorf("ws heartbeat user=%s: %v", c.userID, err)
	}
}

func typingKey(userID, roomID string) string {
	return userID + "|" + roomID
}

// Publish delivers an event to every session currently subscribed to the
// room. Best-effort: delivery failures never propagate to the writer.
func (h *Hub) Publish(roomID string, ev Event) {
	defer logger.DeferLogDuration("hub.Publish", time.Now())()
	h.mu.RLock()
	subs, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

// BroadcastPresence pushes an online/offline transition to the sessions
// subscribed to any of the identity's rooms. Used by the staleness sweeper.
func (h *Hub) BroadcastPresence(userID string, online bool) {
	h.broadcastPresence(userID, online)
}

func (h *Hub) broadcastPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	roomIDs, err := h.directory.MemberRoomIDs(ctx, userID)
	if err != nil {
		logger.Errorf("ws presence broadcast user=%s: %v", userID, err)
		return
	}
	ev := Event{
		Type:    EventPresenceChanged,
		Payload: PresenceChangedPayload{UserID: userID, Online: online},
	}
	for _, roomID := range roomIDs {
		ev.RoomID = roomID
		h.Publish(roomID, ev)
	}
}

// Kick force-unsubscribes every open session the identity holds for the
// room. Called when a membership is revoked; the revocation event itself
// is published by the caller before the subscription is dropped.
func (h *Hub) Kick(roomID, userID string) {
	h.mu.Lock()
	var kicked []*Client
	for c := range h.byUser[userID] {
		if _, ok := c.rooms[roomID]; ok {
			h.dropFromRoomLocked(roomID, c)
			delete(c.rooms, roomID)
			kicked = append(kicked, c)
		}
	}
	h.mu.Unlock()
	h.typing.forget(typingKey(userID, roomID))

	for _, c := range kicked {
		h.sendToClient(c, Event{
			Type:   EventMembershipChanged,
			RoomID: roomID,
			Payload: MembershipChangedPayload{
				RoomID: roomID,
				UserID: userID,
				Action: "removed",
			},
		})
	}
}

func (h *Hub) sendToClient(c *Client, ev Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close the slow client. It will
		// reconcile through a history refetch on reconnect.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
