package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// MessageRepository manages chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.Message, error)
	ListByBusiness(ctx context.Context, businessID string) ([]domain.Message, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	MarkRead(ctx context.Context, ids []string) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (business_id, session_id, sender, sender_id, content_type, content, is_read)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.BusinessID,
		msg.SessionID,
		msg.Sender,
		msg.SenderID,
		msg.ContentType,
		msg.Content,
		msg.IsRead,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// ListBySession returns the full message history of one session ordered by
// timestamp ascending.
func (r *messageRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	const query = `
        SELECT id, business_id, session_id, sender, sender_id, content_type, content, is_read, created_at
        FROM messages WHERE session_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListByBusiness returns every message of a business ordered newest first.
// Used by the dashboard inbox builder.
func (r *messageRepository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Message, error) {
	const query = `
        SELECT id, business_id, session_id, sender, sender_id, content_type, content, is_read, created_at
        FROM messages WHERE business_id=$1 ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE session_id=$1`
	var count int64
	if err := r.pool.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead flips is_read for the given ids. Already-read messages are left
// untouched, so repeated calls are idempotent.
func (r *messageRepository) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE messages SET is_read=TRUE WHERE id = ANY($1)`
	_, err := r.pool.Exec(ctx, query, ids)
	return err
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.BusinessID,
			&msg.SessionID,
			&msg.Sender,
			&msg.SenderID,
			&msg.ContentType,
			&msg.Content,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
