package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roomcast/internal/access"
	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/hub"
	"github.com/roomcast/internal/model"
)

const (
	maxContentLen = 4000
	maxEmojiLen   = 32
	defaultPage   = 50
	maxPage       = 200
)

// MessageStore is the message-log persistence surface the service needs.
// Implemented by repository.MessageRepository.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	History(ctx context.Context, roomID string, afterSeq int64, limit int) ([]model.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
}

// ReactionStore is implemented by repository.ReactionRepository.
type ReactionStore interface {
	Add(ctx context.Context, messageID, userID, emoji string) (bool, error)
	Remove(ctx context.Context, messageID, userID, emoji string) (bool, error)
	GetForMessages(ctx context.Context, messageIDs []string) ([]model.Reaction, error)
	GetGroupedByMessage(ctx context.Context, messageID string) ([]model.ReactionGroup, error)
}

// MessageService owns the append-only message log and reactions.
// Events are published only after the write committed; a broadcast seen
// by a session always refers to durable state.
type MessageService struct {
	messages  MessageStore
	reactions ReactionStore
	rooms     RoomStore
	events    Broadcaster
}

func NewMessageService(messages MessageStore, reactions ReactionStore, rooms RoomStore, events Broadcaster) *MessageService {
	return &MessageService{messages: messages, reactions: reactions, rooms: rooms, events: events}
}

func (s *MessageService) membership(ctx context.Context, roomID, userID string) (*model.Room, *model.Membership, error) {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.rooms.GetMember(ctx, roomID, userID)
	if apperrIsNotFound(err) {
		return rm, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return rm, m, nil
}

func apperrIsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

// PostMessage appends to the room's log. The per-room seq is claimed
// inside the insert transaction, so two concurrent posts to the same room
// commit in seq order and the broadcast order matches it.
func (s *MessageService) PostMessage(ctx context.Context, callerID, roomID, content string, replyTo *string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validationf("content required")
	}
	if len(content) > maxContentLen {
		return nil, apperr.Validationf("content too long (max %d)", maxContentLen)
	}
	rm, m, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanWrite(rm, m) {
		return nil, apperr.Forbiddenf("post room %s user %s", roomID, callerID)
	}
	if replyTo != nil {
		parent, err := s.messages.GetByID(ctx, *replyTo)
		if err != nil {
			if apperrIsNotFound(err) {
				return nil, apperr.Validationf("reply target %s", *replyTo)
			}
			return nil, err
		}
		if parent.RoomID != roomID {
			return nil, apperr.Validationf("reply target %s is in another room", *replyTo)
		}
	}

	msg := &model.Message{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		UserID:  callerID,
		Content: content,
		ReplyTo: replyTo,
		// Display only; seq is the ordering key. Micro precision matches
		// the timestamp column.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	full, err := s.messages.GetByID(ctx, msg.ID)
	if err == nil {
		msg = full
	}
	s.events.Publish(roomID, hub.Event{Type: hub.EventMessageCreated, RoomID: roomID, Payload: msg})
	return msg, nil
}

// EditMessage replaces the content of the caller's own message and
// stamps edited_at. Nothing else about a committed message is mutable.
func (s *MessageService) EditMessage(ctx context.Context, callerID, messageID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validationf("content required")
	}
	if len(content) > maxContentLen {
		return nil, apperr.Validationf("content too long (max %d)", maxContentLen)
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !access.CanEditMessage(callerID, msg) {
		return nil, apperr.Forbiddenf("edit message %s user %s", messageID, callerID)
	}

	editedAt := time.Now().UTC()
	if err := s.messages.UpdateContent(ctx, messageID, content, editedAt); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &editedAt
	s.events.Publish(msg.RoomID, hub.Event{
		Type:   hub.EventMessageUpdated,
		RoomID: msg.RoomID,
		Payload: hub.MessageUpdatedPayload{
			MessageID: msg.ID, RoomID: msg.RoomID, Content: content, EditedAt: editedAt,
		},
	})
	return msg, nil
}

// ListHistory pages through the room's log in seq (commit) order,
// strictly after the cursor. The returned cursor points at the last row
// of the page; an empty page returns an empty cursor.
func (s *MessageService) ListHistory(ctx context.Context, callerID, roomID, cursorToken string, limit int) ([]model.Message, string, error) {
	rm, m, err := s.membership(ctx, roomID, callerID)
	if err != nil {
		return nil, "", err
	}
	if !access.CanRead(rm, m) {
		return nil, "", apperr.Forbiddenf("history room %s user %s", roomID, callerID)
	}
	cur, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = defaultPage
	}
	if limit > maxPage {
		limit = maxPage
	}

	messages, err := s.messages.History(ctx, roomID, cur.Seq, limit)
	if err != nil {
		return nil, "", err
	}
	if len(messages) == 0 {
		return messages, "", nil
	}

	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}
	reactions, err := s.reactions.GetForMessages(ctx, ids)
	if err != nil {
		return nil, "", err
	}
	byMessage := make(map[string][]model.Reaction, len(ids))
	for _, rc := range reactions {
		byMessage[rc.MessageID] = append(byMessage[rc.MessageID], rc)
	}
	for i := range messages {
		messages[i].Reactions = byMessage[messages[i].ID]
	}

	next := Cursor{Seq: messages[len(messages)-1].Seq}.Encode()
	return messages, next, nil
}

// React adds a (message, user, emoji) reaction. Adding the same reaction
// twice is a no-op and publishes nothing.
func (s *MessageService) React(ctx context.Context, callerID, messageID, emoji string) error {
	return s.setReaction(ctx, callerID, messageID, emoji, true)
}

// Unreact removes the reaction; removing an absent one is a no-op.
func (s *MessageService) Unreact(ctx context.Context, callerID, messageID, emoji string) error {
	return s.setReaction(ctx, callerID, messageID, emoji, false)
}

func (s *MessageService) setReaction(ctx context.Context, callerID, messageID, emoji string, add bool) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLen {
		return apperr.Validationf("emoji %q", emoji)
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	rm, m, err := s.membership(ctx, msg.RoomID, callerID)
	if err != nil {
		return err
	}
	if !access.CanRead(rm, m) {
		return apperr.Forbiddenf("react message %s user %s", messageID, callerID)
	}

	var changed bool
	if add {
		changed, err = s.reactions.Add(ctx, messageID, callerID, emoji)
	} else {
		changed, err = s.reactions.Remove(ctx, messageID, callerID, emoji)
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.events.Publish(msg.RoomID, hub.Event{
		Type:   hub.EventReactionChanged,
		RoomID: msg.RoomID,
		Payload: hub.ReactionChangedPayload{
			MessageID: messageID, RoomID: msg.RoomID, UserID: callerID, Emoji: emoji, Added: add,
		},
	})
	return nil
}

// GetReactions returns the aggregated reaction groups for a message.
func (s *MessageService) GetReactions(ctx context.Context, callerID, messageID string) ([]model.ReactionGroup, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	rm, m, err := s.membership(ctx, msg.RoomID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead(rm, m) {
		return nil, apperr.Forbiddenf("reactions message %s user %s", messageID, callerID)
	}
	return s.reactions.GetGroupedByMessage(ctx, messageID)
}
