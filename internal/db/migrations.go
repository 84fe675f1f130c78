package db

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations creates the schema via gormigrate. Migrations are
// idempotent: every raw statement uses IF NOT EXISTS / OR REPLACE, so a
// re-run against a consistent schema is a no-op and never drops data.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: core tables with indexes from struct tags.
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Conversation{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Message{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Knowledge{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("messages", "knowledge", "conversations")
			},
		},

		// Migration 002: generated tsvector columns + GIN indexes.
		// array_to_string is only STABLE, so it is wrapped in an
		// IMMUTABLE helper to be usable in a generated column.
		{
			ID: "002_search_vectors",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE OR REPLACE FUNCTION recall_tags_text(tags text[])
					 RETURNS text
					 LANGUAGE sql IMMUTABLE PARALLEL SAFE
					 AS $$ SELECT coalesce(array_to_string(tags, ' '), '') $$`,

					`ALTER TABLE conversations
					 ADD COLUMN IF NOT EXISTS search_vector tsvector
					 GENERATED ALWAYS AS (
					   to_tsvector('english',
					     coalesce(title, '') || ' ' || coalesce(summary, '') || ' ' || recall_tags_text(tags))
					 ) STORED`,

					`ALTER TABLE messages
					 ADD COLUMN IF NOT EXISTS search_vector tsvector
					 GENERATED ALWAYS AS (to_tsvector('english', coalesce(content, ''))) STORED`,

					`ALTER TABLE knowledge
					 ADD COLUMN IF NOT EXISTS search_vector tsvector
					 GENERATED ALWAYS AS (
					   to_tsvector('english',
					     coalesce(content, '') || ' ' || coalesce(category, '') || ' ' || recall_tags_text(tags))
					 ) STORED`,

					`CREATE INDEX IF NOT EXISTS idx_conversations_search
					 ON conversations USING GIN (search_vector)`,
					`CREATE INDEX IF NOT EXISTS idx_messages_search
					 ON messages USING GIN (search_vector)`,
					`CREATE INDEX IF NOT EXISTS idx_knowledge_search
					 ON knowledge USING GIN (search_vector)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_knowledge_search",
					"DROP INDEX IF EXISTS idx_messages_search",
					"DROP INDEX IF EXISTS idx_conversations_search",
					"ALTER TABLE knowledge DROP COLUMN IF EXISTS search_vector",
					"ALTER TABLE messages DROP COLUMN IF EXISTS search_vector",
					"ALTER TABLE conversations DROP COLUMN IF EXISTS search_vector",
					"DROP FUNCTION IF EXISTS recall_tags_text(text[])",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},

		// Migration 003: secondary indexes for listing and aggregation
		// paths that struct tags cannot express.
		{
			ID: "003_secondary_indexes",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE INDEX IF NOT EXISTS idx_knowledge_tags
					 ON knowledge USING GIN (tags)`,
					`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
					 ON messages (conversation_id, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_knowledge_updated
					 ON knowledge (updated_at DESC)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_knowledge_updated",
					"DROP INDEX IF EXISTS idx_messages_conversation_created",
					"DROP INDEX IF EXISTS idx_knowledge_tags",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
		// Migration 004: deleting a conversation detaches, not deletes,
		// the knowledge extracted from it.
		{
			ID: "004_knowledge_source_fk",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`
					DO $$ BEGIN
					  IF NOT EXISTS (
					    SELECT 1 FROM pg_constraint WHERE conname = 'fk_knowledge_source_conversation'
					  ) THEN
					    ALTER TABLE knowledge
					    ADD CONSTRAINT fk_knowledge_source_conversation
					    FOREIGN KEY (source_conversation_id) REFERENCES conversations(id)
					    ON DELETE SET NULL;
					  END IF;
					END $$
				`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(
					"ALTER TABLE knowledge DROP CONSTRAINT IF EXISTS fk_knowledge_source_conversation",
				).Error
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
