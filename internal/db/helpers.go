package db

import (
	"database/sql"

	"github.com/thebtf/recall/pkg/models"
)

// nullString converts an optional string into sql.NullString, treating
// empty as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toModelConversation maps a persisted conversation (without messages)
// onto the domain type.
func toModelConversation(c *Conversation) models.Conversation {
	return models.Conversation{
		ID:        c.ID,
		Platform:  c.Platform,
		Title:     c.Title.String,
		Summary:   c.Summary.String,
		Tags:      []string(c.Tags),
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// toModelMessages maps persisted messages onto the domain type,
// preserving order.
func toModelMessages(msgs []Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = models.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Role:           models.Role(m.Role),
			Content:        m.Content,
			Seq:            m.Seq,
			CreatedAt:      m.CreatedAt,
		}
	}
	return out
}

// toModelKnowledge maps a persisted knowledge entry onto the domain type.
func toModelKnowledge(k *Knowledge) models.Knowledge {
	return models.Knowledge{
		ID:                   k.ID,
		Category:             k.Category,
		Content:              k.Content,
		Tags:                 []string(k.Tags),
		SourcePlatform:       k.SourcePlatform.String,
		SourceConversationID: k.SourceConversationID,
		Metadata:             k.Metadata,
		CreatedAt:            k.CreatedAt,
		UpdatedAt:            k.UpdatedAt,
	}
}
