package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/thebtf/recall/pkg/models"
)

// KnowledgeStore provides knowledge-entry persistence.
type KnowledgeStore struct {
	store *Store
}

// NewKnowledgeStore creates a new knowledge store.
func NewKnowledgeStore(store *Store) *KnowledgeStore {
	return &KnowledgeStore{store: store}
}

// SaveKnowledge persists a new knowledge entry. sourceConversationID
// optionally links the entry to the conversation it was extracted from.
func (s *KnowledgeStore) SaveKnowledge(ctx context.Context, category, content string, tags []string, sourcePlatform string, sourceConversationID *uuid.UUID, metadata map[string]any) (*models.Knowledge, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return nil, models.NewValidationError("category", "must not be empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, models.NewValidationError("content", "must not be empty")
	}

	entry := &Knowledge{
		Category:             category,
		Content:              content,
		Tags:                 pq.StringArray(tags),
		SourcePlatform:       nullString(strings.ToLower(strings.TrimSpace(sourcePlatform))),
		SourceConversationID: sourceConversationID,
		Metadata:             metadata,
	}

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, wrapStorage("save knowledge", err)
	}

	out := toModelKnowledge(entry)
	return &out, nil
}

// KnowledgeUpdate carries the fields of an in-place update. Nil fields
// are left unchanged.
type KnowledgeUpdate struct {
	Content *string
	Tags    *[]string
}

// UpdateKnowledge updates an entry in place, refreshing updated_at.
func (s *KnowledgeStore) UpdateKnowledge(ctx context.Context, id uuid.UUID, update KnowledgeUpdate) (*models.Knowledge, error) {
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return nil, models.NewValidationError("content", "must not be empty")
	}

	fields := map[string]any{}
	if update.Content != nil {
		fields["content"] = *update.Content
	}
	if update.Tags != nil {
		fields["tags"] = pq.StringArray(*update.Tags)
	}
	if len(fields) == 0 {
		return s.GetKnowledge(ctx, id)
	}
	fields["updated_at"] = gorm.Expr("NOW()")

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Knowledge{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.NotFoundError{Kind: models.KindKnowledge, ID: id.String()}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage("update knowledge", err)
	}

	return s.GetKnowledge(ctx, id)
}

// GetKnowledge fetches one entry by id.
func (s *KnowledgeStore) GetKnowledge(ctx context.Context, id uuid.UUID) (*models.Knowledge, error) {
	var entry Knowledge
	err := s.store.Read(ctx, "get knowledge", func(db *gorm.DB) error {
		return db.First(&entry, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Kind: models.KindKnowledge, ID: id.String()}
	}
	if err != nil {
		return nil, wrapStorage("get knowledge", err)
	}

	out := toModelKnowledge(&entry)
	return &out, nil
}

// DeleteKnowledge removes an entry by id.
func (s *KnowledgeStore) DeleteKnowledge(ctx context.Context, id uuid.UUID) error {
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&Knowledge{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.NotFoundError{Kind: models.KindKnowledge, ID: id.String()}
		}
		return nil
	})
	return wrapStorage("delete knowledge", err)
}

// ScoredKnowledge pairs a knowledge entry with its raw ts_rank score.
type ScoredKnowledge struct {
	Knowledge models.Knowledge
	Score     float64
}

// SearchKnowledgeScored runs ranked full-text search over the knowledge
// search vector (content + category + tags), with optional category and
// tag-overlap filters. Equal scores order by recency, then identifier.
func (s *KnowledgeStore) SearchKnowledgeScored(ctx context.Context, query, category string, tags []string, limit int) ([]ScoredKnowledge, error) {
	limit = s.store.clampList(limit)

	sqlQuery := `
		SELECT k.id, k.category, k.content, k.tags, k.source_platform, k.source_conversation_id, k.created_at, k.updated_at,
		       ts_rank(k.search_vector, websearch_to_tsquery('english', $1)) AS rank
		FROM knowledge k
		WHERE k.search_vector @@ websearch_to_tsquery('english', $1)
		  AND ($2 = '' OR k.category = $2)
		  AND (cardinality($3::text[]) = 0 OR k.tags && $3::text[])
		ORDER BY rank DESC, k.updated_at DESC, k.id ASC
		LIMIT $4
	`

	if tags == nil {
		tags = []string{}
	}

	var results []ScoredKnowledge
	err := s.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, sqlQuery,
			query, strings.ToLower(strings.TrimSpace(category)), pq.StringArray(tags), limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var k Knowledge
			var rank float64
			if err := rows.Scan(&k.ID, &k.Category, &k.Content, &k.Tags,
				&k.SourcePlatform, &k.SourceConversationID, &k.CreatedAt, &k.UpdatedAt, &rank); err != nil {
				return err
			}
			results = append(results, ScoredKnowledge{
				Knowledge: toModelKnowledge(&k),
				Score:     rank,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapStorage("search knowledge", err)
	}
	return results, nil
}
