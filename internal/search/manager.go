// Package search provides the full-text ranking engine for recall.
package search

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/recall/internal/db"
	"github.com/thebtf/recall/pkg/models"
)

// Fallback result-set bounds when the constructor gets none.
const (
	defaultQueryLimit = 10
	maxQueryLimit     = 50

	// queryLogTruncateLen truncates queries in log lines.
	queryLogTruncateLen = 50
)

// Manager runs ranked searches over the memory store. Identical
// concurrent queries are coalesced into a single database round trip.
type Manager struct {
	conversations *db.ConversationStore
	knowledge     *db.KnowledgeStore
	defaultLimit  int
	maxLimit      int
	group         singleflight.Group
}

// NewManager creates a search manager over the given stores.
// defaultLimit and maxLimit set the result-set size used when a caller
// gives none and the hard cap applied to every query; non-positive
// values fall back to the package defaults.
func NewManager(conversations *db.ConversationStore, knowledge *db.KnowledgeStore, defaultLimit, maxLimit int) *Manager {
	if defaultLimit <= 0 {
		defaultLimit = defaultQueryLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = maxQueryLimit
	}
	return &Manager{
		conversations: conversations,
		knowledge:     knowledge,
		defaultLimit:  defaultLimit,
		maxLimit:      maxLimit,
	}
}

// clampLimit applies the configured default and maximum result-set sizes.
func (m *Manager) clampLimit(limit int) int {
	if limit <= 0 {
		return m.defaultLimit
	}
	if limit > m.maxLimit {
		return m.maxLimit
	}
	return limit
}

// SearchMemory runs ranked full-text search over conversations and
// messages, scored independently per entity type, and merges the two
// lists with the cross-entity comparator. A query that is empty after
// normalization returns an empty list without touching the database.
func (m *Manager) SearchMemory(ctx context.Context, query, platform string, limit int) ([]MemoryResult, error) {
	if len(extractKeywords(query)) == 0 {
		return []MemoryResult{}, nil
	}
	query = normalizeQuery(query)
	platform = strings.ToLower(strings.TrimSpace(platform))
	limit = m.clampLimit(limit)

	key := memoryKey(query, platform, limit)
	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.searchMemory(ctx, query, platform, limit)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("query", truncate(query, queryLogTruncateLen)).
			Msg("Coalesced concurrent memory search")
	}
	return v.([]MemoryResult), nil
}

// searchMemory performs the actual two-entity search and merge.
func (m *Manager) searchMemory(ctx context.Context, query, platform string, limit int) ([]MemoryResult, error) {
	convs, err := m.conversations.SearchConversationsScored(ctx, query, platform, limit)
	if err != nil {
		return nil, err
	}
	msgs, err := m.conversations.SearchMessagesScored(ctx, query, platform, limit)
	if err != nil {
		return nil, err
	}

	convResults := make([]MemoryResult, len(convs))
	for i := range convs {
		c := convs[i].Conversation
		convResults[i] = MemoryResult{
			Kind:         models.KindConversation,
			Score:        convs[i].Score,
			Platform:     c.Platform,
			Conversation: &c,
		}
	}
	msgResults := make([]MemoryResult, len(msgs))
	for i := range msgs {
		msg := msgs[i].Message
		msgResults[i] = MemoryResult{
			Kind:     models.KindMessage,
			Score:    msgs[i].Score,
			Platform: msgs[i].Platform,
			Message:  &msg,
		}
	}

	return mergeResults(limit, convResults, msgResults), nil
}

// SearchKnowledge runs ranked full-text search over knowledge entries
// with optional category and tag filters.
func (m *Manager) SearchKnowledge(ctx context.Context, query, category string, tags []string, limit int) ([]db.ScoredKnowledge, error) {
	if len(extractKeywords(query)) == 0 {
		return []db.ScoredKnowledge{}, nil
	}

	results, err := m.knowledge.SearchKnowledgeScored(ctx, normalizeQuery(query), category, tags, m.clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []db.ScoredKnowledge{}
	}
	return results, nil
}

// memoryKey builds a coalescing key from normalized search parameters.
// FNV-64a is fast and collision-safe for in-flight deduplication.
func memoryKey(query, platform string, limit int) string {
	h := fnv.New64a()
	h.Write([]byte(query))
	h.Write([]byte{'|'})
	h.Write([]byte(platform))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(limit)))
	return strconv.FormatUint(h.Sum64(), 36)
}

// truncate shortens a string for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
