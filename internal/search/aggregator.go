package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/thebtf/recall/internal/db"
	"github.com/thebtf/recall/pkg/models"
)

// Fallback per-section bounds when the constructor gets none.
const (
	defaultContextLimit = 5
	maxContextLimit     = 20
)

// ContextSummary combines ranked knowledge and conversation results for
// a topic into one response. The two sections stay separate: callers
// need to distinguish fact-like context from narrative context.
type ContextSummary struct {
	Topic          string                `json:"topic"`
	PlatformFilter string                `json:"platform_filter,omitempty"`
	KnowledgeItems []models.Knowledge    `json:"knowledge_items"`
	Conversations  []models.Conversation `json:"recent_conversations"`

	// NoContext is the explicit "nothing stored about this topic"
	// signal; an empty result is not an error.
	NoContext bool `json:"no_context,omitempty"`
}

// Aggregator builds combined context summaries from the ranking engine.
type Aggregator struct {
	manager       *Manager
	conversations *db.ConversationStore
	defaultLimit  int
	maxLimit      int
}

// NewAggregator creates a context aggregator over a search manager.
// defaultLimit and maxLimit bound each summary section; non-positive
// values fall back to the package defaults.
func NewAggregator(manager *Manager, conversations *db.ConversationStore, defaultLimit, maxLimit int) *Aggregator {
	if defaultLimit <= 0 {
		defaultLimit = defaultContextLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = maxContextLimit
	}
	return &Aggregator{
		manager:       manager,
		conversations: conversations,
		defaultLimit:  defaultLimit,
		maxLimit:      maxLimit,
	}
}

// clampLimit applies the configured per-section bounds.
func (a *Aggregator) clampLimit(limit int) int {
	if limit <= 0 {
		return a.defaultLimit
	}
	if limit > a.maxLimit {
		return a.maxLimit
	}
	return limit
}

// GetContextSummary searches knowledge and conversations for a topic
// independently and concurrently, caps each section at limit, and
// returns both ordered sections. A message hit is folded into its owning
// conversation so the narrative section stays conversation-shaped. Both
// sections empty yields NoContext=true with a nil error.
func (a *Aggregator) GetContextSummary(ctx context.Context, topic, platform string, limit int) (*ContextSummary, error) {
	limit = a.clampLimit(limit)

	summary := &ContextSummary{
		Topic:          topic,
		PlatformFilter: platform,
		KnowledgeItems: []models.Knowledge{},
		Conversations:  []models.Conversation{},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scored, err := a.manager.SearchKnowledge(gctx, topic, "", nil, limit)
		if err != nil {
			return err
		}
		for _, s := range scored {
			summary.KnowledgeItems = append(summary.KnowledgeItems, s.Knowledge)
		}
		return nil
	})

	g.Go(func() error {
		results, err := a.manager.SearchMemory(gctx, topic, platform, limit*2)
		if err != nil {
			return err
		}
		convs, err := a.resolveConversations(gctx, results, limit)
		if err != nil {
			return err
		}
		summary.Conversations = convs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.NoContext = len(summary.KnowledgeItems) == 0 && len(summary.Conversations) == 0
	return summary, nil
}

// resolveConversations walks ranked memory results in order, keeping
// conversation hits as-is and resolving message hits to their owning
// conversation, deduplicated by conversation id.
func (a *Aggregator) resolveConversations(ctx context.Context, results []MemoryResult, limit int) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0, limit)
	seen := map[string]struct{}{}

	for _, r := range results {
		if len(out) >= limit {
			break
		}

		switch r.Kind {
		case models.KindConversation:
			if r.Conversation == nil {
				continue
			}
			key := r.Conversation.ID.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, *r.Conversation)

		case models.KindMessage:
			if r.Message == nil {
				continue
			}
			key := r.Message.ConversationID.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			conv, err := a.conversations.GetConversation(ctx, r.Message.ConversationID)
			if err != nil {
				// The owning conversation can vanish between the search
				// and the lookup; skip rather than fail the summary.
				continue
			}
			out = append(out, *conv)
		}
	}

	return out, nil
}
