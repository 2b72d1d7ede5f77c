package access_test

import (
	"testing"

	"github.com/roomcast/internal/access"
	"github.com/roomcast/internal/model"
)

func member(role model.Role) *model.Membership {
	return &model.Membership{RoomID: "r1", UserID: "u1", Role: role}
}

func TestCanRead(t *testing.T) {
	public := &model.Room{ID: "r1", IsPrivate: false}
	private := &model.Room{ID: "r2", IsPrivate: true}

	cases := []struct {
		name       string
		room       *model.Room
		membership *model.Membership
		want       bool
	}{
		{"public without membership", public, nil, true},
		{"public with membership", public, member(model.RoleMember), true},
		{"private without membership", private, nil, false},
		{"private with membership", private, member(model.RoleMember), true},
		{"nil room", nil, member(model.RoleAdmin), false},
	}
	for _, tc := range cases {
		if got := access.CanRead(tc.room, tc.membership); got != tc.want {
			t.Errorf("%s: CanRead=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanWriteRequiresMembershipEvenInPublicRooms(t *testing.T) {
	public := &model.Room{ID: "r1", IsPrivate: false}
	if access.CanWrite(public, nil) {
		t.Fatalf("CanWrite should be false for a non-member of a public room")
	}
	for _, role := range []model.Role{model.RoleAdmin, model.RoleModerator, model.RoleMember} {
		if !access.CanWrite(public, member(role)) {
			t.Errorf("CanWrite should be true for role %s", role)
		}
	}
}

func TestCanModerate(t *testing.T) {
	room := &model.Room{ID: "r1"}
	if !access.CanModerate(room, member(model.RoleAdmin)) {
		t.Errorf("admin should moderate")
	}
	if !access.CanModerate(room, member(model.RoleModerator)) {
		t.Errorf("moderator should moderate")
	}
	if access.CanModerate(room, member(model.RoleMember)) {
		t.Errorf("member should not moderate")
	}
	if access.CanModerate(room, nil) {
		t.Errorf("non-member should not moderate")
	}
}

func TestCanEditMessageAuthorOnly(t *testing.T) {
	msg := &model.Message{ID: "m1", UserID: "author"}
	if !access.CanEditMessage("author", msg) {
		t.Errorf("author should edit own message")
	}
	if access.CanEditMessage("other", msg) {
		t.Errorf("non-author should not edit")
	}
	if access.CanEditMessage("", msg) {
		t.Errorf("empty user id should not edit")
	}
	if access.CanEditMessage("author", nil) {
		t.Errorf("nil message should not be editable")
	}
}
