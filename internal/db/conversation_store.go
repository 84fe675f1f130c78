package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/thebtf/recall/pkg/models"
)

// ConversationStore provides conversation and message persistence.
type ConversationStore struct {
	store *Store
}

// NewConversationStore creates a new conversation store.
func NewConversationStore(store *Store) *ConversationStore {
	return &ConversationStore{store: store}
}

// CreateConversation persists a conversation together with its initial
// messages as a single atomic unit: either all rows commit or none do.
func (s *ConversationStore) CreateConversation(ctx context.Context, platform, title, summary string, tags []string, metadata map[string]any, msgs []models.NewMessage) (*models.Conversation, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return nil, models.NewValidationError("platform", "must not be empty")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, models.NewValidationError("messages", fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
	}

	conv := &Conversation{
		Platform:   platform,
		Title:      nullString(title),
		Summary:    nullString(summary),
		Tags:       pq.StringArray(tags),
		Metadata:   metadata,
		MessageSeq: int64(len(msgs)),
	}

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit("Messages").Create(conv).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		rows := make([]Message, len(msgs))
		for i, m := range msgs {
			rows[i] = Message{
				ConversationID: conv.ID,
				Role:           string(m.Role),
				Content:        m.Content,
				Seq:            int64(i + 1),
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, wrapStorage("create conversation", err)
	}

	result, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AppendMessage adds one message to an existing conversation. The
// sequence position is taken from the conversation's counter inside the
// same transaction: the row-locking UPDATE serializes concurrent
// appends, so no position is ever skipped or handed out twice.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, role models.Role, content string) (*models.Message, error) {
	if !role.Valid() {
		return nil, models.NewValidationError("role", "unknown role "+string(role))
	}

	msg := &Message{
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
	}

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		var seq int64
		row := tx.Raw(
			`UPDATE conversations
			 SET message_seq = message_seq + 1, updated_at = NOW()
			 WHERE id = ?
			 RETURNING message_seq`,
			conversationID,
		).Row()
		if err := row.Scan(&seq); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &models.NotFoundError{Kind: models.KindConversation, ID: conversationID.String()}
			}
			return err
		}

		msg.Seq = seq
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, wrapStorage("append message", err)
	}

	out := toModelMessages([]Message{*msg})[0]
	return &out, nil
}

// GetConversation fetches a conversation and its messages in sequence
// order. Returns NotFoundError when no such conversation exists.
func (s *ConversationStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv Conversation
	err := s.store.Read(ctx, "get conversation", func(db *gorm.DB) error {
		return db.
			Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
			First(&conv, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Kind: models.KindConversation, ID: id.String()}
	}
	if err != nil {
		return nil, wrapStorage("get conversation", err)
	}

	out := toModelConversation(&conv)
	out.Messages = toModelMessages(conv.Messages)
	return &out, nil
}

// GetRecentConversations lists conversations newest-updated first,
// optionally restricted to one platform. The limit is clamped to the
// store's configured result-set bounds.
func (s *ConversationStore) GetRecentConversations(ctx context.Context, platform string, limit int) ([]models.Conversation, error) {
	limit = s.store.clampList(limit)

	var rows []Conversation
	err := s.store.Read(ctx, "recent conversations", func(db *gorm.DB) error {
		query := db.Model(&Conversation{}).
			Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
			Order("updated_at DESC, id ASC").
			Limit(limit)
		if platform != "" {
			query = query.Where("platform = ?", strings.ToLower(strings.TrimSpace(platform)))
		}
		return query.Find(&rows).Error
	})
	if err != nil {
		return nil, wrapStorage("recent conversations", err)
	}

	out := make([]models.Conversation, len(rows))
	for i := range rows {
		out[i] = toModelConversation(&rows[i])
		out[i].Messages = toModelMessages(rows[i].Messages)
	}
	return out, nil
}

// DeleteConversation removes a conversation by id; its messages go with
// it via the ON DELETE CASCADE foreign key.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&Conversation{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.NotFoundError{Kind: models.KindConversation, ID: id.String()}
		}
		return nil
	})
	return wrapStorage("delete conversation", err)
}

// ScoredConversation pairs a conversation with its raw ts_rank score.
type ScoredConversation struct {
	Conversation models.Conversation
	Score        float64
}

// ScoredMessage pairs a message with its raw ts_rank score and the
// owning conversation's platform for filtering and display.
type ScoredMessage struct {
	Message  models.Message
	Platform string
	Score    float64
}

// SearchConversationsScored runs ranked full-text search over the
// conversation search vector (title + summary + tags). Ties are broken
// by recency, then identifier, so equal-score orderings are stable.
func (s *ConversationStore) SearchConversationsScored(ctx context.Context, query, platform string, limit int) ([]ScoredConversation, error) {
	limit = s.store.clampList(limit)

	sqlQuery := `
		SELECT c.id, c.platform, c.title, c.summary, c.tags, c.created_at, c.updated_at,
		       ts_rank(c.search_vector, websearch_to_tsquery('english', $1)) AS rank
		FROM conversations c
		WHERE c.search_vector @@ websearch_to_tsquery('english', $1)
		  AND ($2 = '' OR c.platform = $2)
		ORDER BY rank DESC, c.updated_at DESC, c.id ASC
		LIMIT $3
	`

	var results []ScoredConversation
	err := s.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, sqlQuery, query, platform, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var c Conversation
			var rank float64
			if err := rows.Scan(&c.ID, &c.Platform, &c.Title, &c.Summary, &c.Tags,
				&c.CreatedAt, &c.UpdatedAt, &rank); err != nil {
				return err
			}
			results = append(results, ScoredConversation{
				Conversation: toModelConversation(&c),
				Score:        rank,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapStorage("search conversations", err)
	}
	return results, nil
}

// SearchMessagesScored runs ranked full-text search over message content,
// joining the owning conversation for the platform filter.
func (s *ConversationStore) SearchMessagesScored(ctx context.Context, query, platform string, limit int) ([]ScoredMessage, error) {
	limit = s.store.clampList(limit)

	sqlQuery := `
		SELECT m.id, m.conversation_id, m.role, m.content, m.seq, m.created_at, c.platform,
		       ts_rank(m.search_vector, websearch_to_tsquery('english', $1)) AS rank
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.search_vector @@ websearch_to_tsquery('english', $1)
		  AND ($2 = '' OR c.platform = $2)
		ORDER BY rank DESC, m.created_at DESC, m.id ASC
		LIMIT $3
	`

	var results []ScoredMessage
	err := s.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, sqlQuery, query, platform, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var m models.Message
			var role string
			var platform string
			var rank float64
			var createdAt time.Time
			if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Seq,
				&createdAt, &platform, &rank); err != nil {
				return err
			}
			m.Role = models.Role(role)
			m.CreatedAt = createdAt
			results = append(results, ScoredMessage{Message: m, Platform: platform, Score: rank})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapStorage("search messages", err)
	}
	return results, nil
}
