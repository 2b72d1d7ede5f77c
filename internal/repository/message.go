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

const msgCols = `m.id, m.room_id, m.user_id, m.content, m.seq, m.reply_to, m.edited_at, m.created_at,
	        u.id, COALESCE(u.username,''), u.avatar_url, u.is_online, u.last_seen_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	author := &model.UserPublic{}
	if err := s.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.Seq, &m.ReplyTo, &m.EditedAt, &m.CreatedAt,
		&author.ID, &author.Username, &author.AvatarURL, &author.IsOnline, &author.LastSeenAt); err != nil {
		return err
	}
	m.Author = author
	return nil
}

// Create appends the message, claiming the room's next ordering seq in
// the same transaction. The last_seq row update serializes writers per
// room; rooms never contend with each other.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("msgRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE rooms SET last_seq = last_seq + 1 WHERE id = $1 RETURNING last_seq`,
		m.RoomID,
	).Scan(&m.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("room %s", m.RoomID)
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Create seq: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, room_id, user_id, reply_to, content, seq, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.RoomID, m.UserID, m.ReplyTo, m.Content, m.Seq, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("msgRepo.Create commit: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 JOIN identities u ON u.id = m.user_id
		 WHERE m.id = $1`, id,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("message %s", id)
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// History returns messages in seq order, strictly after the cursor
// position. Seq alone is the ordering key: the last_seq row lock makes it
// equal to commit order per room, whereas created_at is captured before
// the transaction and can invert under concurrent writers. The cursor is
// forward-only: rows committed after the caller's position become visible
// on the next page, rows at or before it are never re-emitted or skipped.
func (r *MessageRepository) History(ctx context.Context, roomID string, afterSeq int64, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.History", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 JOIN identities u ON u.id = m.user_id
		 WHERE m.room_id = $1 AND m.seq > $2
		 ORDER BY m.seq
		 LIMIT $3`, roomID, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.History query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.History scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.History rows: %w", err)
	}
	return messages, nil
}

// UpdateContent edits a message's content and sets edited_at.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $1, edited_at = $2 WHERE id = $3`,
		content, editedAt, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("message %s", id)
	}
	return nil
}
