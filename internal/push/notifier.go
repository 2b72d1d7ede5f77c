package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/roomcast/internal/logger"
	"github.com/roomcast/internal/model"
)

const (
	notifyTimeout  = 10 * time.Second
	notifyTTL      = 60 // seconds the push service may hold the message
	maxBodyPreview = 120
)

// SubscriptionStore is implemented by repository.PushRepository.
type SubscriptionStore interface {
	Save(ctx context.Context, sub *model.PushSubscription) error
	Delete(ctx context.Context, endpoint string) error
	GetByUsers(ctx context.Context, userIDs []string) ([]model.PushSubscription, error)
}

// MemberLister is the slice of the room directory the notifier needs.
type MemberLister interface {
	ListMembers(ctx context.Context, roomID string) ([]model.RoomMember, error)
}

// Notifier sends Web Push notifications to offline room members when a
// message lands. Fire-and-forget: failures are logged, never surfaced to
// the message write path.
type Notifier struct {
	subs    SubscriptionStore
	members MemberLister
	keys    *VAPIDKeys
	contact string
}

func NewNotifier(subs SubscriptionStore, members MemberLister, keys *VAPIDKeys, contact string) *Notifier {
	if contact == "" {
		contact = "mailto:admin@roomcast.local"
	}
	return &Notifier{subs: subs, members: members, keys: keys, contact: contact}
}

// Subscribe registers a browser endpoint for the user.
func (n *Notifier) Subscribe(ctx context.Context, userID, endpoint, p256dh, auth string) error {
	return n.subs.Save(ctx, &model.PushSubscription{
		Endpoint:  endpoint,
		UserID:    userID,
		P256dh:    p256dh,
		Auth:      auth,
		CreatedAt: time.Now().UTC(),
	})
}

// Unsubscribe drops the endpoint.
func (n *Notifier) Unsubscribe(ctx context.Context, endpoint string) error {
	return n.subs.Delete(ctx, endpoint)
}

// PublicKey returns the VAPID public key browsers need to subscribe.
func (n *Notifier) PublicKey() string {
	return n.keys.PublicKey
}

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// MessageCreated pushes the new message to offline members of its room.
// Call in a goroutine; it carries its own timeout.
func (n *Notifier) MessageCreated(msg *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	members, err := n.members.ListMembers(ctx, msg.RoomID)
	if err != nil {
		logger.Errorf("push: list members room=%s: %v", msg.RoomID, err)
		return
	}
	var offline []string
	for _, m := range members {
		if m.UserID == msg.UserID || m.User.IsOnline {
			continue
		}
		offline = append(offline, m.UserID)
	}
	if len(offline) == 0 {
		return
	}
	subs, err := n.subs.GetByUsers(ctx, offline)
	if err != nil {
		logger.Errorf("push: load subscriptions room=%s: %v", msg.RoomID, err)
		return
	}

	title := "New message"
	if msg.Author != nil && msg.Author.Username != "" {
		title = msg.Author.Username
	}
	body := msg.Content
	if len(body) > maxBodyPreview {
		body = body[:maxBodyPreview]
	}
	payload, err := json.Marshal(notification{
		Title: title,
		Body:  body,
		Data:  map[string]string{"room_id": msg.RoomID, "message_id": msg.ID},
	})
	if err != nil {
		logger.Errorf("push: marshal payload: %v", err)
		return
	}

	for _, sub := range subs {
		n.send(ctx, sub, payload)
	}
}

func (n *Notifier) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
		Subscriber:      n.contact,
		VAPIDPublicKey:  n.keys.PublicKey,
		VAPIDPrivateKey: n.keys.PrivateKey,
		TTL:             notifyTTL,
	})
	if err != nil {
		logger.Errorf("push: send user=%s: %v", sub.UserID, err)
		return
	}
	defer resp.Body.Close()
	// The push service answers 404/410 for dead endpoints; drop them so we
	// stop retrying forever.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := n.subs.Delete(ctx, sub.Endpoint); err != nil {
			logger.Errorf("push: drop dead endpoint user=%s: %v", sub.UserID, err)
		}
	}
}
