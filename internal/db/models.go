package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GORM models. The search_vector columns are generated by the database
// (see migrations.go) and deliberately absent from the structs so GORM
// never tries to write them.

// Conversation is the persisted form of a conversation container.
type Conversation struct {
	ID       uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Platform string         `gorm:"type:varchar(50);not null;index:idx_conversations_platform"`
	Title    sql.NullString `gorm:"type:varchar(500)"`
	Summary  sql.NullString `gorm:"type:text"`
	Tags     pq.StringArray `gorm:"type:text[]"`
	Metadata map[string]any `gorm:"type:jsonb;serializer:json"`

	// MessageSeq is the per-conversation sequence counter. It is only
	// ever advanced inside the row-locking UPDATE in AppendMessage, so
	// concurrent appends serialize on the conversation row and sequence
	// positions are assigned by the store, never client-side.
	MessageSeq int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index:idx_conversations_created,sort:desc"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;index:idx_conversations_updated,sort:desc"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (Conversation) TableName() string { return "conversations" }

// BeforeCreate assigns the immutable identifier.
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Message is one persisted turn within a conversation.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_messages_conversation_seq,priority:1;index:idx_messages_conversation"`
	Role           string         `gorm:"type:varchar(20);not null;check:role IN ('system','user','assistant','tool')"`
	Content        string         `gorm:"type:text;not null"`
	Seq            int64          `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2"`
	Metadata       map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (Message) TableName() string { return "messages" }

// BeforeCreate assigns the immutable identifier.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Knowledge is a persisted standalone fact, preference, instruction or
// decision.
type Knowledge struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Category             string         `gorm:"type:varchar(100);not null;index:idx_knowledge_category"`
	Content              string         `gorm:"type:text;not null"`
	Tags                 pq.StringArray `gorm:"type:text[]"`
	SourcePlatform       sql.NullString `gorm:"type:varchar(50);index:idx_knowledge_platform"`
	SourceConversationID *uuid.UUID     `gorm:"type:uuid"`
	Metadata             map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt            time.Time      `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt            time.Time      `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Knowledge) TableName() string { return "knowledge" }

// BeforeCreate assigns the immutable identifier.
func (k *Knowledge) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}
