package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/logger"
	"github.com/roomcast/internal/model"
)

const roomCols = `id, name, COALESCE(description,''), created_by, is_private, created_at, updated_at`

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(s interface{ Scan(dest ...any) error }, rm *model.Room) error {
	return s.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.CreatedBy, &rm.IsPrivate, &rm.CreatedAt, &rm.UpdatedAt)
}

// Create inserts the room row and the owner's admin membership in one
// transaction: there is never a committed room without an admin member.
func (r *RoomRepository) Create(ctx context.Context, rm *model.Room, owner *model.Membership) error {
	defer logger.DeferLogDuration("room.Create", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("roomRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO rooms (id, name, description, created_by, is_private, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rm.ID, rm.Name, rm.Description, rm.CreatedBy, rm.IsPrivate, rm.CreatedAt, rm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Create insert room: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO memberships (room_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		owner.RoomID, owner.UserID, owner.Role, owner.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Create insert owner: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("roomRepo.Create commit: %w", err)
	}
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByID", time.Now())()
	rm := &model.Room{}
	row := r.pool.QueryRow(ctx, `SELECT `+roomCols+` FROM rooms WHERE id = $1`, id)
	if err := scanRoom(row, rm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("room %s", id)
		}
		return nil, fmt.Errorf("roomRepo.GetByID: %w", err)
	}
	return rm, nil
}

// ListVisible returns all public rooms plus private rooms where the
// caller holds a membership, oldest first.
func (r *RoomRepository) ListVisible(ctx context.Context, callerID string) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.ListVisible", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomCols+` FROM rooms
		 WHERE is_private = false
		    OR EXISTS (SELECT 1 FROM memberships m WHERE m.room_id = rooms.id AND m.user_id = $1)
		 ORDER BY created_at ASC`, callerID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListVisible query: %w", err)
	}
	defer rows.Close()

	list := make([]model.Room, 0, 16)
	for rows.Next() {
		var rm model.Room
		if err := scanRoom(rows, &rm); err != nil {
			return nil, fmt.Errorf("roomRepo.ListVisible scan: %w", err)
		}
		list = append(list, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListVisible rows: %w", err)
	}
	return list, nil
}

// Update changes name and description. Visibility is immutable after
// creation, so there is intentionally no is_private parameter.
func (r *RoomRepository) Update(ctx context.Context, id, name, description string) error {
	defer logger.DeferLogDuration("room.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET name = $1, description = $2, updated_at = NOW() WHERE id = $3`,
		name, description, id,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("room %s", id)
	}
	return nil
}

// AddMember inserts the membership edge; the (room, user) pair is unique,
// a repeat insert is a no-op. Returns whether a row was actually added.
func (r *RoomRepository) AddMember(ctx context.Context, m *model.Membership) (bool, error) {
	defer logger.DeferLogDuration("room.AddMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO memberships (room_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		m.RoomID, m.UserID, m.Role, m.JoinedAt,
	)
	if err != nil {
		return false, fmt.Errorf("roomRepo.AddMember: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	defer logger.DeferLogDuration("room.RemoveMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM memberships WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("roomRepo.RemoveMember: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetMember returns the membership edge, or NotFound when the user is not
// a member of the room.
func (r *RoomRepository) GetMember(ctx context.Context, roomID, userID string) (*model.Membership, error) {
	defer logger.DeferLogDuration("room.GetMember", time.Now())()
	m := &model.Membership{}
	err := r.pool.QueryRow(ctx,
		`SELECT room_id, user_id, role, joined_at FROM memberships WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&m.RoomID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("membership %s/%s", roomID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetMember: %w", err)
	}
	return m, nil
}

func (r *RoomRepository) SetMemberRole(ctx context.Context, roomID, userID string, role model.Role) error {
	defer logger.DeferLogDuration("room.SetMemberRole", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE memberships SET role = $1 WHERE room_id = $2 AND user_id = $3`,
		role, roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.SetMemberRole: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("membership %s/%s", roomID, userID)
	}
	return nil
}

func (r *RoomRepository) ListMembers(ctx context.Context, roomID string) ([]model.RoomMember, error) {
	defer logger.DeferLogDuration("room.ListMembers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.room_id, m.user_id, m.role, m.joined_at,
		        u.id, COALESCE(u.username,''), u.avatar_url, u.is_online, u.last_seen_at
		 FROM memberships m
		 JOIN identities u ON u.id = m.user_id
		 WHERE m.room_id = $1
		 ORDER BY m.joined_at`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListMembers query: %w", err)
	}
	defer rows.Close()

	members := make([]model.RoomMember, 0, 8)
	for rows.Next() {
		var m model.RoomMember
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.Role, &m.JoinedAt,
			&m.User.ID, &m.User.Username, &m.User.AvatarURL, &m.User.IsOnline, &m.User.LastSeenAt); err != nil {
			return nil, fmt.Errorf("roomRepo.ListMembers scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListMembers rows: %w", err)
	}
	return members, nil
}

// MemberRoomIDs lists the ids of rooms the user belongs to. Used for
// presence fan-out, which only targets rooms the user is a member of.
func (r *RoomRepository) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("room.MemberRoomIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT room_id FROM memberships WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.MemberRoomIDs query: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("roomRepo.MemberRoomIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountAdmins is used by the sole-admin guard on leaveRoom.
func (r *RoomRepository) CountAdmins(ctx context.Context, roomID string) (int, error) {
	defer logger.DeferLogDuration("room.CountAdmins", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memberships WHERE room_id = $1 AND role = 'admin'`, roomID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("roomRepo.CountAdmins: %w", err)
	}
	return n, nil
}
