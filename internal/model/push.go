package model

import "time"

// PushSubscription is a browser Web Push endpoint registered by a user.
// One user may hold several (one per browser/device).
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"user_id"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
