package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/logger"
	"github.com/roomcast/internal/model"
	"github.com/roomcast/internal/storage"
)

const (
	maxUsernameLen = 32
	maxEmailLen    = 254
)

// UserStore is the identity persistence surface the service needs.
// Implemented by repository.UserRepository.
type UserStore interface {
	Upsert(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListAll(ctx context.Context, limit int) ([]model.User, error)
	SearchByUsername(ctx context.Context, query string, limit int) ([]model.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
}

// IdentityService owns login, profile upsert and presence heartbeats.
type IdentityService struct {
	users      UserStore
	sessions   storage.SessionStore
	sessionTTL time.Duration
}

func NewIdentityService(users UserStore, sessions storage.SessionStore, sessionTTL time.Duration) *IdentityService {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &IdentityService{users: users, sessions: sessions, sessionTTL: sessionTTL}
}

// Login upserts the identity keyed by email and issues a bearer token.
// First login creates the record; later logins re-apply the profile
// fields, so the operation is idempotent per email.
func (s *IdentityService) Login(ctx context.Context, email, username, avatarURL string) (*model.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || len(email) > maxEmailLen || !strings.Contains(email, "@") {
		return nil, "", apperr.Validationf("email %q", email)
	}
	username = strings.TrimSpace(username)
	if len(username) > maxUsernameLen {
		return nil, "", apperr.Validationf("username too long (max %d)", maxUsernameLen)
	}

	now := time.Now().UTC()
	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		u = &model.User{
			ID:         uuid.NewString(),
			Email:      email,
			LastSeenAt: now,
			CreatedAt:  now,
		}
	case err != nil:
		return nil, "", fmt.Errorf("identity.Login: %w", err)
	}
	if username != "" {
		u.Username = username
	}
	if avatarURL != "" {
		u.AvatarURL = avatarURL
	}
	u.UpdatedAt = now
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, "", fmt.Errorf("identity.Login: %w", err)
	}

	token := uuid.NewString()
	if err := s.sessions.SetSession(ctx, token, u.ID, s.sessionTTL); err != nil {
		return nil, "", fmt.Errorf("identity.Login session: %w", err)
	}
	logger.Infof("login user=%s", u.ID)
	return u, token, nil
}

// Logout invalidates the bearer token. Unknown tokens are a no-op.
func (s *IdentityService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("identity.Logout: %w", err)
	}
	return nil
}

// UpdateProfile changes the caller's own username/avatar.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID, username, avatarURL string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Validationf("username required")
	}
	if len(username) > maxUsernameLen {
		return nil, apperr.Validationf("username too long (max %d)", maxUsernameLen)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Username = username
	u.AvatarURL = avatarURL
	u.UpdatedAt = time.Now().UTC()
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("identity.UpdateProfile: %w", err)
	}
	return u, nil
}

func (s *IdentityService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *IdentityService) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.users.ListAll(ctx, limit)
}

func (s *IdentityService) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("query required")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.users.SearchByUsername(ctx, query, limit)
}

// Heartbeat keeps the identity marked online; the staleness sweeper flips
// it back when heartbeats stop arriving.
func (s *IdentityService) Heartbeat(ctx context.Context, userID string) error {
	if err := s.users.SetOnline(ctx, userID, true); err != nil {
		return fmt.Errorf("identity.Heartbeat: %w", err)
	}
	return nil
}
