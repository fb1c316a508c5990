package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/upload"
)

const conversationColumns = `id, participant_one_id, participant_two_id, last_message_at, created_at`

func scanConversation(row scanner, c *models.Conversation) error {
	return row.Scan(&c.ID, &c.ParticipantOneID, &c.ParticipantTwoID, &c.LastMessageAt, &c.CreatedAt)
}

// GetOrCreateConversation returns the single conversation between two users.
// Participants are stored in canonical order so (a, b) and (b, a) share a row.
func GetOrCreateConversation(ctx context.Context, db *sql.DB, userA, userB int64) (*models.Conversation, error) {
	if userA == userB {
		return nil, database.ErrSelfConversation
	}
	one, two := models.CanonicalPair(userA, userB)

	_, err := db.ExecContext(ctx,
		`INSERT INTO conversations (participant_one_id, participant_two_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (participant_one_id, participant_two_id) DO NOTHING`,
		one, two)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	conversation := &models.Conversation{}
	err = scanConversation(db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE participant_one_id = $1 AND participant_two_id = $2`,
		one, two), conversation)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return conversation, nil
}

func GetConversation(ctx context.Context, db database.Querier, id int64) (*models.Conversation, error) {
	conversation := &models.Conversation{}
	err := scanConversation(db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id), conversation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conversation, nil
}

type SendMessageRequest struct {
	ConversationID int64
	SenderID       int64
	Body           string
	Files          []upload.File
}

// SendMessage stores a message with its attachments. Files are uploaded
// before the transaction opens and removed again if it fails.
func SendMessage(ctx context.Context, db *sql.DB, uploader upload.Uploader, req SendMessageRequest) (*models.Message, error) {
	conversation, err := GetConversation(ctx, db, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(req.SenderID) {
		return nil, database.ErrNotParticipant
	}

	var stored []*upload.Stored
	for _, f := range req.Files {
		s, err := uploader.UploadFile(ctx, f, "messages", req.SenderID)
		if err != nil {
			discardUploads(ctx, uploader, stored)
			return nil, fmt.Errorf("upload attachment %s: %w", f.Name, err)
		}
		stored = append(stored, s)
	}

	message := &models.Message{}
	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO messages (conversation_id, sender_id, body, created_at)
			 VALUES ($1, $2, $3, NOW())
			 RETURNING id, conversation_id, sender_id, body, read_at, created_at`,
			req.ConversationID, req.SenderID, req.Body).Scan(
			&message.ID, &message.ConversationID, &message.SenderID, &message.Body, &message.ReadAt, &message.CreatedAt)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		for _, s := range stored {
			a := models.MessageAttachment{MessageID: message.ID, FileName: s.Name, URL: s.URL, Size: s.Size}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO message_attachments (message_id, file_name, url, size, created_at)
				 VALUES ($1, $2, $3, $4, NOW())
				 RETURNING id, created_at`,
				a.MessageID, a.FileName, a.URL, a.Size).Scan(&a.ID, &a.CreatedAt)
			if err != nil {
				return fmt.Errorf("create attachment: %w", err)
			}
			message.Attachments = append(message.Attachments, a)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_at = $1 WHERE id = $2`,
			message.CreatedAt, req.ConversationID)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		discardUploads(ctx, uploader, stored)
		return nil, err
	}

	return message, nil
}

func discardUploads(ctx context.Context, uploader upload.Uploader, stored []*upload.Stored) {
	for _, s := range stored {
		if err := uploader.Delete(ctx, s.Key); err != nil {
			logging.FromContext(ctx).Warn("failed to remove orphaned upload",
				zap.String("key", s.Key),
				zap.Error(err))
		}
	}
}

// MarkConversationAsRead marks every unread message written by the other
// participant as read and returns how many changed.
func MarkConversationAsRead(ctx context.Context, db *sql.DB, conversationID, readerID int64) (int64, error) {
	conversation, err := GetConversation(ctx, db, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.HasParticipant(readerID) {
		return 0, database.ErrNotParticipant
	}

	result, err := db.ExecContext(ctx,
		`UPDATE messages
		 SET read_at = NOW()
		 WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL`,
		conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return marked, nil
}

// ListMessages pages backwards through a conversation, newest first.
func ListMessages(ctx context.Context, db *sql.DB, conversationID, readerID int64, cursor string, limit int) (*CursorPage, error) {
	conversation, err := GetConversation(ctx, db, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(readerID) {
		return nil, database.ErrNotParticipant
	}

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, read_at, created_at
		 FROM messages
		 WHERE conversation_id = $1
		   AND (created_at, id) < ($2, $3)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4`,
		conversationID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	var nextCursor string
	if hasMore && len(messages) > 0 {
		last := messages[len(messages)-1]
		nextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      messages,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UnreadCount counts messages addressed to userID that are still unread.
func UnreadCount(ctx context.Context, db database.Querier, userID int64) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE (c.participant_one_id = $1 OR c.participant_two_id = $1)
		   AND m.sender_id <> $1
		   AND m.read_at IS NULL`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

func ListConversations(ctx context.Context, db *sql.DB, userID int64) ([]models.Conversation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT c.id, c.participant_one_id, c.participant_two_id, c.last_message_at, c.created_at,
		        (SELECT COUNT(*) FROM messages m
		         WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.read_at IS NULL) AS unread
		 FROM conversations c
		 WHERE c.participant_one_id = $1 OR c.participant_two_id = $1
		 ORDER BY c.last_message_at DESC NULLS LAST, c.id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		err := rows.Scan(&c.ID, &c.ParticipantOneID, &c.ParticipantTwoID, &c.LastMessageAt, &c.CreatedAt, &c.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return conversations, nil
}
