package service_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/hub"
	"github.com/roomcast/internal/model"
)

// memStore is an in-memory double for the repository layer, mirroring its
// semantics: NotFound on misses, no-op booleans on duplicate edges, and a
// per-room last_seq counter for message ordering.
type memStore struct {
	rooms     map[string]*model.Room
	members   map[string]map[string]*model.Membership
	messages  map[string]*model.Message
	lastSeq   map[string]int64
	reactions []model.Reaction
}

func newMemStore() *memStore {
	return &memStore{
		rooms:    make(map[string]*model.Room),
		members:  make(map[string]map[string]*model.Membership),
		messages: make(map[string]*model.Message),
		lastSeq:  make(map[string]int64),
	}
}

func (s *memStore) Create(ctx context.Context, rm *model.Room, owner *model.Membership) error {
	cp := *rm
	s.rooms[rm.ID] = &cp
	s.members[rm.ID] = map[string]*model.Membership{owner.UserID: owner}
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*model.Room, error) {
	rm, ok := s.rooms[id]
	if !ok {
		return nil, apperr.NotFoundf("room %s", id)
	}
	cp := *rm
	return &cp, nil
}

func (s *memStore) ListVisible(ctx context.Context, callerID string) ([]model.Room, error) {
	var list []model.Room
	for id, rm := range s.rooms {
		if !rm.IsPrivate {
			list = append(list, *rm)
			continue
		}
		if _, ok := s.members[id][callerID]; ok {
			list = append(list, *rm)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (s *memStore) Update(ctx context.Context, id, name, description string) error {
	rm, ok := s.rooms[id]
	if !ok {
		return apperr.NotFoundf("room %s", id)
	}
	rm.Name = name
	rm.Description = description
	rm.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) AddMember(ctx context.Context, m *model.Membership) (bool, error) {
	if _, ok := s.members[m.RoomID]; !ok {
		s.members[m.RoomID] = make(map[string]*model.Membership)
	}
	if _, exists := s.members[m.RoomID][m.UserID]; exists {
		return false, nil
	}
	cp := *m
	s.members[m.RoomID][m.UserID] = &cp
	return true, nil
}

func (s *memStore) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	if _, ok := s.members[roomID][userID]; !ok {
		return false, nil
	}
	delete(s.members[roomID], userID)
	return true, nil
}

func (s *memStore) GetMember(ctx context.Context, roomID, userID string) (*model.Membership, error) {
	m, ok := s.members[roomID][userID]
	if !ok {
		return nil, apperr.NotFoundf("membership %s/%s", roomID, userID)
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) SetMemberRole(ctx context.Context, roomID, userID string, role model.Role) error {
	m, ok := s.members[roomID][userID]
	if !ok {
		return apperr.NotFoundf("membership %s/%s", roomID, userID)
	}
	m.Role = role
	return nil
}

func (s *memStore) ListMembers(ctx context.Context, roomID string) ([]model.RoomMember, error) {
	var out []model.RoomMember
	for _, m := range s.members[roomID] {
		out = append(out, model.RoomMember{Membership: *m, User: model.UserPublic{ID: m.UserID}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *memStore) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	for roomID, mm := range s.members {
		if _, ok := mm[userID]; ok {
			ids = append(ids, roomID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) CountAdmins(ctx context.Context, roomID string) (int, error) {
	n := 0
	for _, m := range s.members[roomID] {
		if m.Role == model.RoleAdmin {
			n++
		}
	}
	return n, nil
}

// MessageStore

func (s *memStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if _, ok := s.rooms[m.RoomID]; !ok {
		return apperr.NotFoundf("room %s", m.RoomID)
	}
	s.lastSeq[m.RoomID]++
	m.Seq = s.lastSeq[m.RoomID]
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, apperr.NotFoundf("message %s", id)
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) History(ctx context.Context, roomID string, afterSeq int64, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.RoomID == roomID && m.Seq > afterSeq {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	m, ok := s.messages[id]
	if !ok {
		return apperr.NotFoundf("message %s", id)
	}
	m.Content = content
	m.EditedAt = &editedAt
	return nil
}

// ReactionStore

func (s *memStore) Add(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	for _, rc := range s.reactions {
		if rc.MessageID == messageID && rc.UserID == userID && rc.Emoji == emoji {
			return false, nil
		}
	}
	s.reactions = append(s.reactions, model.Reaction{
		MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now().UTC(),
	})
	return true, nil
}

func (s *memStore) Remove(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	for i, rc := range s.reactions {
		if rc.MessageID == messageID && rc.UserID == userID && rc.Emoji == emoji {
			s.reactions = append(s.reactions[:i], s.reactions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetForMessages(ctx context.Context, messageIDs []string) ([]model.Reaction, error) {
	want := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = true
	}
	var out []model.Reaction
	for _, rc := range s.reactions {
		if want[rc.MessageID] {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (s *memStore) GetGroupedByMessage(ctx context.Context, messageID string) ([]model.ReactionGroup, error) {
	byEmoji := make(map[string]*model.ReactionGroup)
	var order []string
	for _, rc := range s.reactions {
		if rc.MessageID != messageID {
			continue
		}
		g, ok := byEmoji[rc.Emoji]
		if !ok {
			g = &model.ReactionGroup{Emoji: rc.Emoji}
			byEmoji[rc.Emoji] = g
			order = append(order, rc.Emoji)
		}
		g.Count++
		g.Users = append(g.Users, rc.UserID)
	}
	out := make([]model.ReactionGroup, 0, len(order))
	for _, emoji := range order {
		out = append(out, *byEmoji[emoji])
	}
	return out, nil
}

// messageStoreAdapter renames the message methods onto the service's
// MessageStore interface (memStore.Create is taken by the room side).
type messageStoreAdapter struct{ s *memStore }

func (a messageStoreAdapter) Create(ctx context.Context, m *model.Message) error {
	return a.s.CreateMessage(ctx, m)
}

func (a messageStoreAdapter) GetByID(ctx context.Context, id string) (*model.Message, error) {
	return a.s.GetMessage(ctx, id)
}

func (a messageStoreAdapter) History(ctx context.Context, roomID string, afterSeq int64, limit int) ([]model.Message, error) {
	return a.s.History(ctx, roomID, afterSeq, limit)
}

func (a messageStoreAdapter) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	return a.s.UpdateContent(ctx, id, content, editedAt)
}

// eventLog records published events and kicks.
type eventLog struct {
	mu     sync.Mutex
	events []hub.Event
	kicks  []string // "roomID/userID"
}

func (l *eventLog) Publish(roomID string, ev hub.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Kick(roomID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kicks = append(l.kicks, roomID+"/"+userID)
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *eventLog) last() (hub.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return hub.Event{}, false
	}
	return l.events[len(l.events)-1], true
}

// memUsers is an in-memory UserStore double.
type memUsers struct {
	byID map[string]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*model.User)}
}

func (s *memUsers) Upsert(ctx context.Context, u *model.User) error {
	cp := *u
	s.byID[u.ID] = &cp
	return nil
}

func (s *memUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFoundf("user %s", id)
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("user email %s", email)
}

func (s *memUsers) ListAll(ctx context.Context, limit int) ([]model.User, error) {
	var out []model.User
	for _, u := range s.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memUsers) SearchByUsername(ctx context.Context, query string, limit int) ([]model.User, error) {
	var out []model.User
	for _, u := range s.byID {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memUsers) SetOnline(ctx context.Context, userID string, online bool) error {
	u, ok := s.byID[userID]
	if !ok {
		return nil
	}
	u.IsOnline = online
	u.LastSeenAt = time.Now().UTC()
	return nil
}

// memSessions is an in-memory SessionStore double (no TTL expiry).
type memSessions struct {
	tokens map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{tokens: make(map[string]string)}
}

func (s *memSessions) SetSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	s.tokens[token] = userID
	return nil
}

func (s *memSessions) GetSession(ctx context.Context, token string) (string, error) {
	return s.tokens[token], nil
}

func (s *memSessions) DeleteSession(ctx context.Context, token string) error {
	delete(s.tokens, token)
	return nil
}

func (s *memSessions) Close() error { return nil }
