package search

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/recall/pkg/models"
)

func convResult(score float64, updated time.Time, id uuid.UUID) MemoryResult {
	return MemoryResult{
		Kind:  models.KindConversation,
		Score: score,
		Conversation: &models.Conversation{
			ID:        id,
			UpdatedAt: updated,
		},
	}
}

func msgResult(score float64, created time.Time, id uuid.UUID) MemoryResult {
	return MemoryResult{
		Kind:  models.KindMessage,
		Score: score,
		Message: &models.Message{
			ID:        id,
			CreatedAt: created,
		},
	}
}

func TestLess(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	tests := []struct {
		name string
		a    MemoryResult
		b    MemoryResult
		want bool
	}{
		{
			name: "higher score wins",
			a:    msgResult(0.9, earlier, idA),
			b:    convResult(0.5, now, idB),
			want: true,
		},
		{
			name: "lower score loses",
			a:    convResult(0.2, now, idA),
			b:    msgResult(0.3, earlier, idB),
			want: false,
		},
		{
			name: "equal score prefers conversation",
			a:    convResult(0.5, earlier, idA),
			b:    msgResult(0.5, now, idB),
			want: true,
		},
		{
			name: "equal score message after conversation",
			a:    msgResult(0.5, now, idA),
			b:    convResult(0.5, earlier, idB),
			want: false,
		},
		{
			name: "same kind newer first",
			a:    convResult(0.5, now, idA),
			b:    convResult(0.5, earlier, idB),
			want: true,
		},
		{
			name: "full tie breaks on id",
			a:    convResult(0.5, now, idA),
			b:    convResult(0.5, now, idB),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Less(&tt.a, &tt.b))
		})
	}
}

func TestLessIsDeterministic(t *testing.T) {
	now := time.Now()
	a := convResult(0.5, now, uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	b := convResult(0.5, now, uuid.MustParse("00000000-0000-0000-0000-000000000002"))

	// A strict weak ordering: exactly one direction holds for unequal items.
	assert.True(t, Less(&a, &b))
	assert.False(t, Less(&b, &a))
	assert.False(t, Less(&a, &a))
}

func TestMergeResults(t *testing.T) {
	now := time.Now()
	convHigh := convResult(0.9, now, uuid.New())
	convLow := convResult(0.1, now, uuid.New())
	msgMid := msgResult(0.5, now, uuid.New())
	msgHigh := msgResult(0.9, now, uuid.New())

	merged := mergeResults(10,
		[]MemoryResult{convHigh, convLow},
		[]MemoryResult{msgHigh, msgMid},
	)

	require.Len(t, merged, 4)
	// Equal top scores: conversation outranks message.
	assert.Equal(t, convHigh.Conversation.ID, merged[0].Conversation.ID)
	assert.Equal(t, msgHigh.Message.ID, merged[1].Message.ID)
	assert.Equal(t, msgMid.Message.ID, merged[2].Message.ID)
	assert.Equal(t, convLow.Conversation.ID, merged[3].Conversation.ID)
}

func TestMergeResultsTruncates(t *testing.T) {
	now := time.Now()
	var list []MemoryResult
	for i := 0; i < 8; i++ {
		list = append(list, msgResult(float64(i), now, uuid.New()))
	}

	merged := mergeResults(3, list)
	require.Len(t, merged, 3)
	assert.Equal(t, float64(7), merged[0].Score)
	assert.Equal(t, float64(5), merged[2].Score)
}

func TestMergeResultsEmpty(t *testing.T) {
	assert.Empty(t, mergeResults(10))
	assert.Empty(t, mergeResults(10, nil, []MemoryResult{}))
}

func TestClampLimit(t *testing.T) {
	m := NewManager(nil, nil, 0, 0)
	assert.Equal(t, defaultQueryLimit, m.clampLimit(0))
	assert.Equal(t, defaultQueryLimit, m.clampLimit(-5))
	assert.Equal(t, 25, m.clampLimit(25))
	assert.Equal(t, maxQueryLimit, m.clampLimit(500))
}

func TestClampLimitConfigured(t *testing.T) {
	m := NewManager(nil, nil, 15, 30)
	assert.Equal(t, 15, m.clampLimit(0))
	assert.Equal(t, 20, m.clampLimit(20))
	assert.Equal(t, 30, m.clampLimit(500))

	// A cap below the default is rejected in favor of the fallback cap
	bad := NewManager(nil, nil, 15, 5)
	assert.Equal(t, 15, bad.clampLimit(0))
	assert.Equal(t, maxQueryLimit, bad.clampLimit(500))
}

func TestAggregatorClampLimit(t *testing.T) {
	a := NewAggregator(nil, nil, 0, 0)
	assert.Equal(t, defaultContextLimit, a.clampLimit(0))
	assert.Equal(t, maxContextLimit, a.clampLimit(100))

	custom := NewAggregator(nil, nil, 3, 8)
	assert.Equal(t, 3, custom.clampLimit(-1))
	assert.Equal(t, 6, custom.clampLimit(6))
	assert.Equal(t, 8, custom.clampLimit(100))
}
