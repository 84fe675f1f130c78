// Package models defines the domain types shared across recall.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message turn.
type Role string

// Valid message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Conversation is a container of exchanged messages from one assistant session.
type Conversation struct {
	ID        uuid.UUID      `json:"id"`
	Platform  string         `json:"platform"`
	Title     string         `json:"title,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Messages  []Message      `json:"messages,omitempty"`
}

// Message is one turn within a conversation. Seq is assigned by the store
// in insertion order and is unique within the owning conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Seq            int64     `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage is the input shape for messages supplied at conversation
// creation time, before the store has assigned identity or sequence.
type NewMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Knowledge is a standalone fact, preference, instruction or decision,
// independent of any conversation.
type Knowledge struct {
	ID                   uuid.UUID      `json:"id"`
	Category             string         `json:"category"`
	Content              string         `json:"content"`
	Tags                 []string       `json:"tags,omitempty"`
	SourcePlatform       string         `json:"source_platform,omitempty"`
	SourceConversationID *uuid.UUID     `json:"source_conversation_id,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// EntryKind discriminates entity types in cross-entity operations
// (search_memory results, delete_memory targets).
type EntryKind string

// Known entry kinds.
const (
	KindConversation EntryKind = "conversation"
	KindMessage      EntryKind = "message"
	KindKnowledge    EntryKind = "knowledge"
)

// Stats is a point-in-time inventory of the memory store.
type Stats struct {
	Conversations int64            `json:"total_conversations"`
	Messages      int64            `json:"total_messages"`
	Knowledge     int64            `json:"total_knowledge_items"`
	Platforms     map[string]int64 `json:"platforms"`
	Categories    map[string]int64 `json:"knowledge_categories"`
}
