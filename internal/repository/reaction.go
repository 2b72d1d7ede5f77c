package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roomcast/internal/logger"
	"github.com/roomcast/internal/model"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Add inserts the (message, user, emoji) row; the triple is unique, a
// duplicate insert is a no-op. Returns whether a row was added.
func (r *ReactionRepository) Add(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	defer logger.DeferLogDuration("reaction.Add", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO reactions (message_id, user_id, emoji)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Add: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReactionRepository) Remove(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	defer logger.DeferLogDuration("reaction.Remove", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Remove: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetForMessages loads reactions for a page of messages in one query.
func (r *ReactionRepository) GetForMessages(ctx context.Context, messageIDs []string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.GetForMessages", time.Now())()
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, emoji, created_at
		 FROM reactions
		 WHERE message_id = ANY($1)
		 ORDER BY created_at`, messageIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.GetForMessages query: %w", err)
	}
	defer rows.Close()

	reactions := make([]model.Reaction, 0, len(messageIDs))
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("reactionRepo.GetForMessages scan: %w", err)
		}
		reactions = append(reactions, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.GetForMessages rows: %w", err)
	}
	return reactions, nil
}

// GetGroupedByMessage returns aggregated reaction groups for a message.
func (r *ReactionRepository) GetGroupedByMessage(ctx context.Context, messageID string) ([]model.ReactionGroup, error) {
	defer logger.DeferLogDuration("reaction.GetGroupedByMessage", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT emoji, COUNT(*), array_agg(user_id::text)
		 FROM reactions
		 WHERE message_id = $1
		 GROUP BY emoji
		 ORDER BY MIN(created_at)`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.GetGroupedByMessage query: %w", err)
	}
	defer rows.Close()

	groups := make([]model.ReactionGroup, 0, 4)
	for rows.Next() {
		var g model.ReactionGroup
		if err := rows.Scan(&g.Emoji, &g.Count, &g.Users); err != nil {
			return nil, fmt.Errorf("reactionRepo.GetGroupedByMessage scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.GetGroupedByMessage rows: %w", err)
	}
	return groups, nil
}
