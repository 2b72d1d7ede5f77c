// Package access holds the authorization predicates. All of them are
// deterministic and side-effect-free over the values passed in; callers
// re-fetch the membership and re-evaluate on every operation, because
// membership can change between requests. Decisions are never cached.
package access

import "github.com/roomcast/internal/model"

// CanRead reports whether the user may read the room's history and
// subscribe to its events: the room is public, or the user is a member.
// membership is nil when the user has no edge in the room.
func CanRead(room *model.Room, membership *model.Membership) bool {
	if room == nil {
		return false
	}
	return !room.IsPrivate || membership != nil
}

// CanWrite reports whether the user may post into the room. Membership is
// required for any role; public visibility alone grants read, not write.
func CanWrite(room *model.Room, membership *model.Membership) bool {
	if room == nil {
		return false
	}
	return membership != nil
}

// CanModerate reports whether the user may manage the room's members and
// metadata: admin or moderator role.
func CanModerate(room *model.Room, membership *model.Membership) bool {
	if room == nil || membership == nil {
		return false
	}
	return membership.Role == model.RoleAdmin || membership.Role == model.RoleModerator
}

// CanEditMessage reports whether the user may edit a message: authors
// only, regardless of role.
func CanEditMessage(userID string, msg *model.Message) bool {
	if msg == nil || userID == "" {
		return false
	}
	return msg.UserID == userID
}
