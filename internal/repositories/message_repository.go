package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"group-chat-service/internal/models"
)

// Page bounds a history read.
type Page struct {
	Offset int
	Limit  int
}

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListMessages(ctx context.Context, groupID int64, excludingSenders []string, page Page) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID int64, userID string) (models.Message, bool, error)
	SearchMessages(ctx context.Context, groupID int64, query string, excludingSenders []string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, group_id, sender_id, kind, text, file_url, file_type, file_name, media_url, media_query, read_by, created_at`

// AppendMessage persists a message; the database assigns id and created_at.
func (r *MessageRepo) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var stored models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_messages (group_id, sender_id, kind, text, file_url, file_type, file_name, media_url, media_query, read_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING `+messageColumns,
		msg.GroupID, msg.SenderID, msg.Kind, msg.Text, msg.FileURL, msg.FileType, msg.FileName, msg.MediaURL, msg.MediaQuery, msg.ReadBy).
		StructScan(&stored)
	return stored, err
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM group_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns a page of the group's messages in creation order, skipping the given senders.
func (r *MessageRepo) ListMessages(ctx context.Context, groupID int64, excludingSenders []string, page Page) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM group_messages
        WHERE group_id=$1 AND NOT (sender_id = ANY($2::text[]))
        ORDER BY created_at ASC, id ASC
        OFFSET $3 LIMIT $4`, groupID, senderArray(excludingSenders), page.Offset, page.Limit)
	return msgs, err
}

// MarkRead adds userID to the read set. The returned bool is false when the user had
// already read the message; the row lock taken by UPDATE makes concurrent acks safe.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int64, userID string) (models.Message, bool, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE group_messages SET read_by = array_append(read_by, $2)
        WHERE id=$1 AND NOT ($2 = ANY(read_by)) RETURNING `+messageColumns, messageID, userID).StructScan(&msg)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, err
	}
	msg, err = r.GetMessage(ctx, messageID)
	return msg, false, err
}

// SearchMessages matches text, file names and media queries case-insensitively, newest first.
func (r *MessageRepo) SearchMessages(ctx context.Context, groupID int64, query string, excludingSenders []string, limit int) ([]models.Message, error) {
	pattern := "%" + escapeLike(query) + "%"
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM group_messages
        WHERE group_id=$1 AND NOT (sender_id = ANY($2::text[]))
        AND (text ILIKE $3 OR file_name ILIKE $3 OR media_query ILIKE $3)
        ORDER BY created_at DESC, id DESC
        LIMIT $4`, groupID, senderArray(excludingSenders), pattern, limit)
	return msgs, err
}

// senderArray encodes an exclusion list. A nil list becomes '{}' so that NOT ANY keeps every row.
func senderArray(ids []string) any {
	if ids == nil {
		ids = []string{}
	}
	return pq.Array(ids)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
