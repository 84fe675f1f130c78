package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases",
			input:    "Redis Caching",
			expected: "redis caching",
		},
		{
			name:     "collapses whitespace",
			input:    "redis \t  caching\n\nstrategy",
			expected: "redis caching strategy",
		},
		{
			name:     "trims",
			input:    "  postgres  ",
			expected: "postgres",
		},
		{
			name:     "empty stays empty",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    " \t\n ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeQuery(tt.input))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "drops stop words",
			input:    "how does the caching work",
			expected: []string{"caching", "work"},
		},
		{
			name:     "strips punctuation",
			input:    "what's postgres, really?",
			expected: []string{"whats", "postgres", "really"},
		},
		{
			name:     "empty query",
			input:    "",
			expected: nil,
		},
		{
			name:     "stop words only",
			input:    "the and of it",
			expected: nil,
		},
		{
			name:     "punctuation only",
			input:    "?! ... --",
			expected: nil,
		},
		{
			name:     "keeps numbers",
			input:    "http 404 errors",
			expected: []string{"http", "404", "errors"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractKeywords(tt.input))
		})
	}
}

func TestMemoryKey(t *testing.T) {
	a := memoryKey("redis caching", "claude", 10)
	b := memoryKey("redis caching", "claude", 10)
	assert.Equal(t, a, b, "identical parameters must coalesce")

	assert.NotEqual(t, a, memoryKey("redis caching", "chatgpt", 10))
	assert.NotEqual(t, a, memoryKey("redis caching", "claude", 20))
	assert.NotEqual(t, a, memoryKey("redis", "caching claude", 10), "field boundaries must not shift")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
