package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"logitalk/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions with the message store.
type MessageRepository interface {
	Create(ctx context.Context, senderID, receiverID int, body string) (models.Message, error)
	History(ctx context.Context, userID, otherID int) ([]models.Message, error)
	MarkRead(ctx context.Context, readerID, counterpartID int) (int64, error)
	Summaries(ctx context.Context, userID int) ([]models.Summary, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message. The database assigns the id and timestamp;
// the returned row is the canonical record.
func (r *MessageRepo) Create(ctx context.Context, senderID, receiverID int, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, body) VALUES ($1, $2, $3) RETURNING id, sender_id, receiver_id, body, read, created_at`, senderID, receiverID, body).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &msg.Read, &msg.CreatedAt)
	return msg, err
}

// History returns the bidirectional message history between two users,
// oldest first.
func (r *MessageRepo) History(ctx context.Context, userID, otherID int) ([]models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, body, read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userID, otherID)
	return msgs, err
}

// MarkRead flips read on every unread message sent by counterpart to
// reader and reports how many rows changed. The flip is one-way; rows
// already read are untouched.
func (r *MessageRepo) MarkRead(ctx context.Context, readerID, counterpartID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE`, counterpartID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Summaries returns one conversation row per counterpart: the latest
// message preview plus the count of received, unread messages, newest
// conversation first.
func (r *MessageRepo) Summaries(ctx context.Context, userID int) ([]models.Summary, error) {
	query := `WITH conv AS (
            SELECT CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END AS counterpart_id,
                   sender_id, receiver_id, body, read, created_at, id
            FROM messages
            WHERE sender_id=$1 OR receiver_id=$1
        ), last AS (
            SELECT DISTINCT ON (counterpart_id)
                   counterpart_id, body AS last_message, created_at AS last_message_at
            FROM conv
            ORDER BY counterpart_id, created_at DESC, id DESC
        ), unread AS (
            SELECT counterpart_id, COUNT(*) AS unread_count
            FROM conv
            WHERE receiver_id=$1 AND read = FALSE
            GROUP BY counterpart_id
        )
        SELECT l.counterpart_id, u.name, u.avatar_id, l.last_message, l.last_message_at,
               COALESCE(un.unread_count, 0) AS unread_count
        FROM last l
        JOIN users u ON u.id = l.counterpart_id
        LEFT JOIN unread un ON un.counterpart_id = l.counterpart_id
        ORDER BY l.last_message_at DESC`
	var summaries []models.Summary
	err := r.db.SelectContext(ctx, &summaries, query, userID)
	return summaries, err
}
