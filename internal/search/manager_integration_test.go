package search

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/recall/internal/db"
	"github.com/thebtf/recall/pkg/models"
)

// testStores opens stores against RECALL_TEST_DSN with wiped tables, or
// skips when no test database is configured.
func testStores(t *testing.T) (*db.ConversationStore, *db.KnowledgeStore) {
	t.Helper()

	dsn := os.Getenv("RECALL_TEST_DSN")
	if dsn == "" {
		t.Skip("RECALL_TEST_DSN not set, skipping integration test")
	}

	store, err := db.NewStore(db.Config{
		DSN:            dsn,
		MaxConns:       4,
		AcquireTimeout: 5 * time.Second,
		LogLevel:       logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.GetRawDB().Exec("TRUNCATE conversations, knowledge CASCADE")
	require.NoError(t, err)

	return db.NewConversationStore(store), db.NewKnowledgeStore(store)
}

func TestSearchMemoryMergesEntities(t *testing.T) {
	cs, ks := testStores(t)
	mgr := NewManager(cs, ks, 0, 0)
	ctx := context.Background()

	_, err := cs.CreateConversation(ctx, "claude", "Terraform modules", "How to split terraform modules",
		[]string{"terraform"}, nil,
		[]models.NewMessage{{Role: models.RoleUser, Content: "structure advice"}})
	require.NoError(t, err)

	_, err = cs.CreateConversation(ctx, "chatgpt", "Weekend plans", "", nil, nil,
		[]models.NewMessage{{Role: models.RoleUser, Content: "terraform state locking keeps failing"}})
	require.NoError(t, err)

	results, err := mgr.SearchMemory(ctx, "terraform", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	kinds := map[models.EntryKind]int{}
	for _, r := range results {
		kinds[r.Kind]++
	}
	assert.Equal(t, 1, kinds[models.KindConversation])
	assert.Equal(t, 1, kinds[models.KindMessage])

	// Ordering is strictly non-increasing by score
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchMemoryEmptyQueryDoesNotError(t *testing.T) {
	cs, ks := testStores(t)
	mgr := NewManager(cs, ks, 0, 0)

	for _, q := range []string{"", "   ", "the and of", "?!"} {
		results, err := mgr.SearchMemory(context.Background(), q, "", 10)
		require.NoError(t, err, q)
		assert.Empty(t, results, q)
	}
}

func TestSearchMemoryPlatformFilter(t *testing.T) {
	cs, ks := testStores(t)
	mgr := NewManager(cs, ks, 0, 0)
	ctx := context.Background()

	_, err := cs.CreateConversation(ctx, "claude", "Docker networking", "", nil, nil,
		[]models.NewMessage{{Role: models.RoleUser, Content: "docker bridge"}})
	require.NoError(t, err)

	results, err := mgr.SearchMemory(ctx, "docker", "Claude", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results, "platform filter is case insensitive")

	none, err := mgr.SearchMemory(ctx, "docker", "gemini", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetContextSummary(t *testing.T) {
	cs, ks := testStores(t)
	mgr := NewManager(cs, ks, 0, 0)
	agg := NewAggregator(mgr, cs, 0, 0)
	ctx := context.Background()

	conv, err := cs.CreateConversation(ctx, "claude", "Grafana dashboards", "Set up grafana alerting",
		nil, nil, []models.NewMessage{{Role: models.RoleUser, Content: "grafana setup"}})
	require.NoError(t, err)

	_, err = ks.SaveKnowledge(ctx, "decisions", "Grafana is the standard dashboard tool",
		[]string{"observability"}, "claude", &conv.ID, nil)
	require.NoError(t, err)

	summary, err := agg.GetContextSummary(ctx, "grafana", "", 5)
	require.NoError(t, err)
	assert.False(t, summary.NoContext)
	require.Len(t, summary.KnowledgeItems, 1)
	require.NotEmpty(t, summary.Conversations)
	assert.Equal(t, conv.ID, summary.Conversations[0].ID)
}

func TestGetContextSummaryFoldsMessageHits(t *testing.T) {
	cs, ks := testStores(t)
	mgr := NewManager(cs, ks, 0, 0)
	agg := NewAggregator(mgr, cs, 0, 0)
	ctx := context.Background()

	// Topic only appears in message content, never in title or summary.
	conv, err := cs.CreateConversation(ctx, "claude", "Untitled session", "", nil, nil,
		[]models.NewMessage{{Role: models.RoleUser, Content: "wireguard handshake keeps timing out"}})
	require.NoError(t, err)

	summary, err := agg.GetContextSummary(ctx, "wireguard", "", 5)
	require.NoError(t, err)
	require.Len(t, summary.Conversations, 1)
	assert.Equal(t, conv.ID, summary.Conversations[0].ID)
}

func TestGetContextSummaryNoContext(t *testing.T) {
	cs, ks := testStores(t)
	mgr := NewManager(cs, ks, 0, 0)
	agg := NewAggregator(mgr, cs, 0, 0)

	summary, err := agg.GetContextSummary(context.Background(), "zanzibar", "", 5)
	require.NoError(t, err)
	assert.True(t, summary.NoContext)
	assert.Empty(t, summary.KnowledgeItems)
	assert.Empty(t, summary.Conversations)
}
