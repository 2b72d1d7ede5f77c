package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roomcast/internal/apperr"
)

type stubConn struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubConn) ReadMessage() (int, []byte, error)       { return 0, nil, nil }
func (s *stubConn) WriteMessage(mt int, data []byte) error  { return nil }
func (s *stubConn) SetReadDeadline(t time.Time) error       { return nil }
func (s *stubConn) SetWriteDeadline(t time.Time) error      { return nil }
func (s *stubConn) SetReadLimit(limit int64)                {}
func (s *stubConn) SetPongHandler(h func(string) error)     {}
func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubDirectory struct {
	mu        sync.Mutex
	allowed   map[string]bool // userID|roomID -> allowed
	memberOf  map[string][]string
	subErrors map[string]error // userID|roomID -> error to return
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		allowed:   make(map[string]bool),
		memberOf:  make(map[string][]string),
		subErrors: make(map[string]error),
	}
}

func (d *stubDirectory) allow(userID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allowed[userID+"|"+roomID] = true
}

func (d *stubDirectory) CanSubscribe(ctx context.Context, userID, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.subErrors[userID+"|"+roomID]; ok {
		return err
	}
	if d.allowed[userID+"|"+roomID] {
		return nil
	}
	return apperr.ErrForbidden
}

func (d *stubDirectory) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memberOf[userID], nil
}

type stubPresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

type presenceCall struct {
	userID string
	online bool
}

func (p *stubPresence) SetOnline(ctx context.Context, userID string, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{userID, online})
	return nil
}

func (p *stubPresence) lastCall() (presenceCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return presenceCall{}, false
	}
	return p.calls[len(p.calls)-1], true
}

func newTestHub(dir *stubDirectory, pres *stubPresence) *Hub {
	return NewHub(dir, pres, 100, 2*time.Second)
}

func newTestClient(h *Hub, userID string) (*Client, *stubConn) {
	conn := &stubConn{}
	c := NewClient(h, conn, "sess-"+userID, userID)
	return c, conn
}

func drainEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event received for user %s", c.userID)
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event for user %s: %+v", c.userID, ev)
	default:
	}
}

func TestSubscribeAndPublishFanOut(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("alice", "room1")
	dir.allow("bob", "room1")
	h := newTestHub(dir, &stubPresence{})

	alice, _ := newTestClient(h, "alice")
	bob, _ := newTestClient(h, "bob")
	h.addClient(alice)
	h.addClient(bob)

	h.handleSubscribe(context.Background(), alice, "room1")
	h.handleSubscribe(context.Background(), bob, "room1")

	if ev := drainEvent(t, alice); ev.Type != EventSubscribed || ev.RoomID != "room1" {
		t.Fatalf("expected subscribed ack, got %+v", ev)
	}
	drainEvent(t, bob)

	h.Publish("room1", Event{Type: EventMessageCreated, RoomID: "room1", Payload: "hello"})

	for _, c := range []*Client{alice, bob} {
		ev := drainEvent(t, c)
		if ev.Type != EventMessageCreated {
			t.Errorf("user %s: expected message.created, got %s", c.userID, ev.Type)
		}
	}
}

func TestSubscribeForbidden(t *testing.T) {
	dir := newStubDirectory()
	h := newTestHub(dir, &stubPresence{})

	eve, _ := newTestClient(h, "eve")
	h.addClient(eve)

	h.handleSubscribe(context.Background(), eve, "secret-room")

	ev := drainEvent(t, eve)
	if ev.Type != EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}

	h.Publish("secret-room", Event{Type: EventMessageCreated, RoomID: "secret-room"})
	assertNoEvent(t, eve)
}

func TestSubscribeRoomNotFound(t *testing.T) {
	dir := newStubDirectory()
	dir.subErrors["eve|gone"] = apperr.NotFoundf("room gone")
	h := newTestHub(dir, &stubPresence{})

	eve, _ := newTestClient(h, "eve")
	h.addClient(eve)

	h.handleSubscribe(context.Background(), eve, "gone")
	ev := drainEvent(t, eve)
	if ev.Type != EventError || ev.Payload != "room not found" {
		t.Fatalf("expected room not found error, got %+v", ev)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("alice", "room1")
	h := newTestHub(dir, &stubPresence{})

	alice, _ := newTestClient(h, "alice")
	h.addClient(alice)
	h.handleSubscribe(context.Background(), alice, "room1")
	drainEvent(t, alice)

	h.Unsubscribe(alice, "room1")

	h.Publish("room1", Event{Type: EventMessageCreated, RoomID: "room1"})
	assertNoEvent(t, alice)
}

func TestKickForceUnsubscribes(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("alice", "room1")
	h := newTestHub(dir, &stubPresence{})

	alice, _ := newTestClient(h, "alice")
	h.addClient(alice)
	h.handleSubscribe(context.Background(), alice, "room1")
	drainEvent(t, alice)

	h.Kick("room1", "alice")

	ev := drainEvent(t, alice)
	if ev.Type != EventMembershipChanged {
		t.Fatalf("expected membership.changed, got %+v", ev)
	}
	payload, ok := ev.Payload.(MembershipChangedPayload)
	if !ok || payload.Action != "removed" {
		t.Fatalf("expected removed action, got %+v", ev.Payload)
	}

	h.Publish("room1", Event{Type: EventMessageCreated, RoomID: "room1"})
	assertNoEvent(t, alice)
}

func TestSlowClientIsClosed(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("slow", "room1")
	h := newTestHub(dir, &stubPresence{})

	slow, conn := newTestClient(h, "slow")
	h.addClient(slow)
	h.handleSubscribe(context.Background(), slow, "room1")
	drainEvent(t, slow)

	// Fill the send buffer without draining it.
	for i := 0; i < sendBufSize; i++ {
		h.Publish("room1", Event{Type: EventMessageCreated, RoomID: "room1"})
	}
	// One more must trigger the slow-client close path.
	h.Publish("room1", Event{Type: EventMessageCreated, RoomID: "room1"})

	if !conn.isClosed() {
		t.Fatalf("slow client connection should be closed")
	}
	select {
	case <-slow.done:
	default:
		t.Fatalf("slow client done channel should be closed")
	}
}

func TestTypingBurstCollapses(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("alice", "room1")
	dir.allow("bob", "room1")
	h := newTestHub(dir, &stubPresence{})

	alice, _ := newTestClient(h, "alice")
	bob, _ := newTestClient(h, "bob")
	h.addClient(alice)
	h.addClient(bob)
	h.handleSubscribe(context.Background(), alice, "room1")
	h.handleSubscribe(context.Background(), bob, "room1")
	drainEvent(t, alice)
	drainEvent(t, bob)

	// Burst of identical typing=true within the window: only the first passes.
	h.handleTyping(alice, "room1", true)
	h.handleTyping(alice, "room1", true)
	h.handleTyping(alice, "room1", true)

	ev := drainEvent(t, bob)
	if ev.Type != EventTypingChanged {
		t.Fatalf("expected typing.changed, got %+v", ev)
	}
	// Alice receives her own typing event too; drain it.
	drainEvent(t, alice)
	assertNoEvent(t, bob)

	// State transition passes immediately even inside the window.
	h.handleTyping(alice, "room1", false)
	ev = drainEvent(t, bob)
	payload, ok := ev.Payload.(TypingChangedPayload)
	if !ok || payload.Typing {
		t.Fatalf("expected typing=false transition, got %+v", ev.Payload)
	}
}

func TestTypingRequiresSubscription(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("bob", "room1")
	h := newTestHub(dir, &stubPresence{})

	alice, _ := newTestClient(h, "alice")
	bob, _ := newTestClient(h, "bob")
	h.addClient(alice)
	h.addClient(bob)
	h.handleSubscribe(context.Background(), bob, "room1")
	drainEvent(t, bob)

	// Alice never subscribed; her typing frame is dropped.
	h.handleTyping(alice, "room1", true)
	assertNoEvent(t, bob)
}

func TestDisconnectReleasesAllRoomsAndGoesOffline(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("alice", "room1")
	dir.allow("alice", "room2")
	pres := &stubPresence{}
	h := newTestHub(dir, pres)

	alice, _ := newTestClient(h, "alice")
	h.addClient(alice)
	h.handleSubscribe(context.Background(), alice, "room1")
	h.handleSubscribe(context.Background(), alice, "room2")
	drainEvent(t, alice)
	drainEvent(t, alice)

	h.removeClient(alice)

	h.mu.RLock()
	nRooms := len(h.rooms)
	h.mu.RUnlock()
	if nRooms != 0 {
		t.Fatalf("expected all room subscriptions released, %d rooms remain", nRooms)
	}

	call, ok := pres.lastCall()
	if !ok || call.userID != "alice" || call.online {
		t.Fatalf("expected offline transition recorded, got %+v (ok=%v)", call, ok)
	}
}

// A session that drops without unsubscribing must not leave typing-limiter
// entries behind.
func TestDisconnectClearsTypingState(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("alice", "room1")
	h := newTestHub(dir, &stubPresence{})

	alice, _ := newTestClient(h, "alice")
	h.addClient(alice)
	h.handleSubscribe(context.Background(), alice, "room1")
	drainEvent(t, alice)
	h.handleTyping(alice, "room1", true)
	drainEvent(t, alice)

	h.removeClient(alice)

	h.typing.mu.Lock()
	n := len(h.typing.last)
	h.typing.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d typing-limiter entries remain after disconnect", n)
	}
}

func TestSecondConnectionKeepsUserOnline(t *testing.T) {
	dir := newStubDirectory()
	pres := &stubPresence{}
	h := newTestHub(dir, pres)

	c1, _ := newTestClient(h, "alice")
	c2, _ := newTestClient(h, "alice")
	h.addClient(c1)
	h.addClient(c2)

	pres.mu.Lock()
	online := len(pres.calls)
	pres.mu.Unlock()
	if online != 1 {
		t.Fatalf("expected a single online transition for two connections, got %d", online)
	}

	// Dropping one of two connections must not flip the user offline.
	h.removeClient(c1)
	pres.mu.Lock()
	calls := len(pres.calls)
	pres.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected no offline transition while a connection remains, got %d calls", calls)
	}

	h.removeClient(c2)
	call, _ := pres.lastCall()
	if call.online {
		t.Fatalf("expected offline after last connection dropped")
	}
}

func TestPresenceFanOutToMemberRooms(t *testing.T) {
	dir := newStubDirectory()
	dir.allow("bob", "room1")
	dir.memberOf["alice"] = []string{"room1"}
	h := newTestHub(dir, &stubPresence{})

	bob, _ := newTestClient(h, "bob")
	h.addClient(bob)
	h.handleSubscribe(context.Background(), bob, "room1")
	drainEvent(t, bob)

	alice, _ := newTestClient(h, "alice")
	h.addClient(alice)

	ev := drainEvent(t, bob)
	if ev.Type != EventPresenceChanged || ev.RoomID != "room1" {
		t.Fatalf("expected presence.changed in room1, got %+v", ev)
	}
	payload, ok := ev.Payload.(PresenceChangedPayload)
	if !ok || payload.UserID != "alice" || !payload.Online {
		t.Fatalf("expected alice online, got %+v", ev.Payload)
	}
}

func TestHeartbeatBumpsPresence(t *testing.T) {
	dir := newStubDirectory()
	pres := &stubPresence{}
	h := newTestHub(dir, pres)

	alice, _ := newTestClient(h, "alice")
	h.addClient(alice)

	h.HandleFrame(context.Background(), alice, Frame{Type: "heartbeat"})

	pres.mu.Lock()
	calls := len(pres.calls)
	pres.mu.Unlock()
	if calls != 2 { // connect + heartbeat
		t.Fatalf("expected heartbeat to record a presence bump, got %d calls", calls)
	}
}

func TestConnectionLimit(t *testing.T) {
	dir := newStubDirectory()
	h := NewHub(dir, &stubPresence{}, 1, 2*time.Second)

	c1, _ := newTestClient(h, "alice")
	c2, conn2 := newTestClient(h, "bob")
	h.addClient(c1)
	h.addClient(c2)

	if !conn2.isClosed() {
		t.Fatalf("connection above the limit should be closed")
	}
	h.mu.RLock()
	total := h.total
	h.mu.RUnlock()
	if total != 1 {
		t.Fatalf("expected total=1, got %d", total)
	}
}
