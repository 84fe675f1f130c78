package search

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/thebtf/recall/pkg/models"
)

// MemoryResult is one entry of a cross-entity search, discriminated by
// Kind. Exactly one of Conversation/Message is set.
type MemoryResult struct {
	Kind         models.EntryKind     `json:"kind"`
	Score        float64              `json:"score"`
	Platform     string               `json:"platform"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Message      *models.Message      `json:"message,omitempty"`
}

// id returns the result's entity identifier for tie-breaking.
func (r *MemoryResult) id() uuid.UUID {
	if r.Conversation != nil {
		return r.Conversation.ID
	}
	return r.Message.ID
}

// recency returns the timestamp used for tie-breaking: a conversation's
// last update, a message's creation time.
func (r *MemoryResult) recency() time.Time {
	if r.Conversation != nil {
		return r.Conversation.UpdatedAt
	}
	return r.Message.CreatedAt
}

// kindPriority orders conversations ahead of messages at equal score.
func kindPriority(k models.EntryKind) int {
	if k == models.KindConversation {
		return 0
	}
	return 1
}

// Less is the cross-entity result comparator: score descending, then
// kind priority (conversation before message), then recency descending,
// then identifier ascending. Kept as a standalone function because the
// tie-break chain is the easiest thing in the merge to get subtly wrong.
func Less(a, b *MemoryResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if pa, pb := kindPriority(a.Kind), kindPriority(b.Kind); pa != pb {
		return pa < pb
	}
	if ra, rb := a.recency(), b.recency(); !ra.Equal(rb) {
		return ra.After(rb)
	}
	return a.id().String() < b.id().String()
}

// mergeResults interleaves independently-scored result lists into one
// ordered list and truncates to limit.
func mergeResults(limit int, lists ...[]MemoryResult) []MemoryResult {
	var merged []MemoryResult
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return Less(&merged[i], &merged[j])
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
