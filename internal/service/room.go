package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roomcast/internal/access"
	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/hub"
	"github.com/roomcast/internal/logger"
	"github.com/roomcast/internal/model"
)

const (
	maxRoomNameLen = 64
	maxRoomDescLen = 512
)

// RoomStore is the room/membership persistence surface the service needs.
// Implemented by repository.RoomRepository.
type RoomStore interface {
	Create(ctx context.Context, rm *model.Room, owner *model.Membership) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	ListVisible(ctx context.Context, callerID string) ([]model.Room, error)
	Update(ctx context.Context, id, name, description string) error
	AddMember(ctx context.Context, m *model.Membership) (bool, error)
	RemoveMember(ctx context.Context, roomID, userID string) (bool, error)
	GetMember(ctx context.Context, roomID, userID string) (*model.Membership, error)
	SetMemberRole(ctx context.Context, roomID, userID string, role model.Role) error
	ListMembers(ctx context.Context, roomID string) ([]model.RoomMember, error)
	MemberRoomIDs(ctx context.Context, userID string) ([]string, error)
	CountAdmins(ctx context.Context, roomID string) (int, error)
}

// Broadcaster pushes room events to subscribed sessions. Implemented by
// hub.Hub; best-effort, never blocks the write path.
type Broadcaster interface {
	Publish(roomID string, ev hub.Event)
	Kick(roomID, userID string)
}

// RoomService owns the room directory: creation, membership edges, roles.
type RoomService struct {
	rooms  RoomStore
	events Broadcaster
}

func NewRoomService(rooms RoomStore, events Broadcaster) *RoomService {
	return &RoomService{rooms: rooms, events: events}
}

// membership resolves the caller's edge, mapping "not a member" to nil so
// the access predicates can evaluate it.
func (s *RoomService) membership(ctx context.Context, roomID, userID string) (*model.Membership, error) {
	m, err := s.rooms.GetMember(ctx, roomID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateRoom inserts the room together with the creator's admin
// membership; a room never exists without at least one admin.
func (s *RoomService) CreateRoom(ctx context.Context, callerID, name, description string, isPrivate bool) (*model.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("room name required")
	}
	if len(name) > maxRoomNameLen {
		return nil, apperr.Validationf("room name too long (max %d)", maxRoomNameLen)
	}
	if len(description) > maxRoomDescLen {
		return nil, apperr.Validationf("description too long (max %d)", maxRoomDescLen)
	}

	now := time.Now().UTC()
	rm := &model.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   &callerID,
		IsPrivate:   isPrivate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := &model.Membership{RoomID: rm.ID, UserID: callerID, Role: model.RoleAdmin, JoinedAt: now}
	if err := s.rooms.Create(ctx, rm, owner); err != nil {
		return nil, fmt.Errorf("room.CreateRoom: %w", err)
	}
	logger.Infof("room created id=%s private=%v by=%s", rm.ID, rm.IsPrivate, callerID)
	return rm, nil
}

// ListRooms returns the rooms visible to the caller: all public rooms
// plus private rooms they are a member of.
func (s *RoomService) ListRooms(ctx context.Context, callerID string) ([]model.Room, error) {
	return s.rooms.ListVisible(ctx, callerID)
}

func (s *RoomService) GetRoom(ctx context.Context, callerID, roomID string) (*model.Room, error) {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead(rm, m) {
		return nil, apperr.Forbiddenf("room %s user %s", roomID, callerID)
	}
	return rm, nil
}

// UpdateRoom changes name/description. Admins and moderators only;
// visibility is immutable.
func (s *RoomService) UpdateRoom(ctx context.Context, callerID, roomID, name, description string) (*model.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("room name required")
	}
	if len(name) > maxRoomNameLen {
		return nil, apperr.Validationf("room name too long (max %d)", maxRoomNameLen)
	}
	if len(description) > maxRoomDescLen {
		return nil, apperr.Validationf("description too long (max %d)", maxRoomDescLen)
	}
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanModerate(rm, m) {
		return nil, apperr.Forbiddenf("update room %s user %s", roomID, callerID)
	}
	if err := s.rooms.Update(ctx, roomID, name, description); err != nil {
		return nil, err
	}
	return s.rooms.GetByID(ctx, roomID)
}

// JoinRoom self-joins a public room. Joining twice is a no-op and
// publishes nothing; that holds for private rooms too, where an invited
// member re-joining gets their existing membership back. Only callers
// without one are refused on private rooms.
func (s *RoomService) JoinRoom(ctx context.Context, callerID, roomID string) (*model.Membership, error) {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	existing, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if rm.IsPrivate {
		return nil, apperr.Forbiddenf("join private room %s user %s", roomID, callerID)
	}
	m := &model.Membership{RoomID: roomID, UserID: callerID, Role: model.RoleMember, JoinedAt: time.Now().UTC()}
	added, err := s.rooms.AddMember(ctx, m)
	if err != nil {
		return nil, err
	}
	if !added {
		return s.rooms.GetMember(ctx, roomID, callerID)
	}
	s.events.Publish(roomID, hub.Event{
		Type:   hub.EventMembershipChanged,
		RoomID: roomID,
		Payload: hub.MembershipChangedPayload{
			RoomID: roomID, UserID: callerID, Action: "joined", Role: string(m.Role),
		},
	})
	return m, nil
}

// LeaveRoom removes the caller's own membership. The last admin cannot
// leave; promote someone first.
func (s *RoomService) LeaveRoom(ctx context.Context, callerID, roomID string) error {
	m, err := s.rooms.GetMember(ctx, roomID, callerID)
	if err != nil {
		return err
	}
	if m.Role == model.RoleAdmin {
		n, err := s.rooms.CountAdmins(ctx, roomID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return apperr.Conflictf("room %s would be left without an admin", roomID)
		}
	}
	if _, err := s.rooms.RemoveMember(ctx, roomID, callerID); err != nil {
		return err
	}
	s.events.Publish(roomID, hub.Event{
		Type:   hub.EventMembershipChanged,
		RoomID: roomID,
		Payload: hub.MembershipChangedPayload{
			RoomID: roomID, UserID: callerID, Action: "left",
		},
	})
	s.events.Kick(roomID, callerID)
	return nil
}

// AddMember invites a user into the room. Admins may grant any role;
// moderators may only add plain members.
func (s *RoomService) AddMember(ctx context.Context, callerID, roomID, userID string, role model.Role) (*model.Membership, error) {
	if role == "" {
		role = model.RoleMember
	}
	switch role {
	case model.RoleAdmin, model.RoleModerator, model.RoleMember:
	default:
		return nil, apperr.Validationf("role %q", role)
	}
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	caller, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanModerate(rm, caller) {
		return nil, apperr.Forbiddenf("add member room %s user %s", roomID, callerID)
	}
	if role != model.RoleMember && caller.Role != model.RoleAdmin {
		return nil, apperr.Forbiddenf("grant role %s room %s user %s", role, roomID, callerID)
	}
	m := &model.Membership{RoomID: roomID, UserID: userID, Role: role, JoinedAt: time.Now().UTC()}
	added, err := s.rooms.AddMember(ctx, m)
	if err != nil {
		return nil, err
	}
	if !added {
		return s.rooms.GetMember(ctx, roomID, userID)
	}
	s.events.Publish(roomID, hub.Event{
		Type:   hub.EventMembershipChanged,
		RoomID: roomID,
		Payload: hub.MembershipChangedPayload{
			RoomID: roomID, UserID: userID, Action: "joined", Role: string(role),
		},
	})
	return m, nil
}

// RemoveMember revokes a membership and force-unsubscribes the target's
// open sessions. Moderators cannot remove admins or other moderators.
func (s *RoomService) RemoveMember(ctx context.Context, callerID, roomID, targetID string) error {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	caller, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return err
	}
	if !access.CanModerate(rm, caller) {
		return apperr.Forbiddenf("remove member room %s user %s", roomID, callerID)
	}
	target, err := s.rooms.GetMember(ctx, roomID, targetID)
	if err != nil {
		return err
	}
	if target.Role != model.RoleMember && caller.Role != model.RoleAdmin {
		return apperr.Forbiddenf("remove %s room %s user %s", target.Role, roomID, callerID)
	}
	if target.Role == model.RoleAdmin {
		n, err := s.rooms.CountAdmins(ctx, roomID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return apperr.Conflictf("room %s would be left without an admin", roomID)
		}
	}
	if _, err := s.rooms.RemoveMember(ctx, roomID, targetID); err != nil {
		return err
	}
	// Event first, then the kick: the target's sessions still hold the
	// subscription and receive the revocation notice.
	s.events.Publish(roomID, hub.Event{
		Type:   hub.EventMembershipChanged,
		RoomID: roomID,
		Payload: hub.MembershipChangedPayload{
			RoomID: roomID, UserID: targetID, Action: "removed",
		},
	})
	s.events.Kick(roomID, targetID)
	return nil
}

// SetMemberRole changes a member's role. Admin only; demoting the last
// admin is refused.
func (s *RoomService) SetMemberRole(ctx context.Context, callerID, roomID, targetID string, role model.Role) error {
	switch role {
	case model.RoleAdmin, model.RoleModerator, model.RoleMember:
	default:
		return apperr.Validationf("role %q", role)
	}
	caller, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return err
	}
	if caller == nil || caller.Role != model.RoleAdmin {
		return apperr.Forbiddenf("set role room %s user %s", roomID, callerID)
	}
	target, err := s.rooms.GetMember(ctx, roomID, targetID)
	if err != nil {
		return err
	}
	if target.Role == model.RoleAdmin && role != model.RoleAdmin {
		n, err := s.rooms.CountAdmins(ctx, roomID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return apperr.Conflictf("room %s would be left without an admin", roomID)
		}
	}
	if err := s.rooms.SetMemberRole(ctx, roomID, targetID, role); err != nil {
		return err
	}
	s.events.Publish(roomID, hub.Event{
		Type:   hub.EventMembershipChanged,
		RoomID: roomID,
		Payload: hub.MembershipChangedPayload{
			RoomID: roomID, UserID: targetID, Action: "role_changed", Role: string(role),
		},
	})
	return nil
}

func (s *RoomService) ListMembers(ctx context.Context, callerID, roomID string) ([]model.RoomMember, error) {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead(rm, m) {
		return nil, apperr.Forbiddenf("list members room %s user %s", roomID, callerID)
	}
	return s.rooms.ListMembers(ctx, roomID)
}

// CanSubscribe implements hub.Directory. Evaluated fresh on every
// subscribe so a revoked membership takes effect immediately.
func (s *RoomService) CanSubscribe(ctx context.Context, userID, roomID string) error {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	m, err := s.membership(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !access.CanRead(rm, m) {
		return apperr.Forbiddenf("subscribe room %s user %s", roomID, userID)
	}
	return nil
}

// MemberRoomIDs implements hub.Directory.
func (s *RoomService) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	return s.rooms.MemberRoomIDs(ctx, userID)
}
