package db

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/thebtf/recall/pkg/models"
)

// StatsStore computes aggregate views over the memory schema.
type StatsStore struct {
	store *Store
}

// NewStatsStore creates a new stats store.
func NewStatsStore(store *Store) *StatsStore {
	return &StatsStore{store: store}
}

// GetStats returns entity counts plus platform and category breakdowns.
// All aggregates run inside one repeatable-read transaction, so they
// reflect a single point-in-time snapshot rather than interleaved
// partial aggregates from concurrently committing writers.
func (s *StatsStore) GetStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{
		Platforms:  map[string]int64{},
		Categories: map[string]int64{},
	}

	err := s.store.Read(ctx, "get stats", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&Conversation{}).Count(&stats.Conversations).Error; err != nil {
				return err
			}
			if err := tx.Model(&Message{}).Count(&stats.Messages).Error; err != nil {
				return err
			}
			if err := tx.Model(&Knowledge{}).Count(&stats.Knowledge).Error; err != nil {
				return err
			}

			type bucket struct {
				Key   string
				Count int64
			}

			var platforms []bucket
			if err := tx.Model(&Conversation{}).
				Select("platform AS key, COUNT(*) AS count").
				Group("platform").Order("count DESC").
				Scan(&platforms).Error; err != nil {
				return err
			}
			for _, b := range platforms {
				stats.Platforms[b.Key] = b.Count
			}

			var categories []bucket
			if err := tx.Model(&Knowledge{}).
				Select("category AS key, COUNT(*) AS count").
				Group("category").Order("count DESC").
				Scan(&categories).Error; err != nil {
				return err
			}
			for _, b := range categories {
				stats.Categories[b.Key] = b.Count
			}

			return nil
		}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	})
	if err != nil {
		return nil, wrapStorage("get stats", err)
	}

	return stats, nil
}

// GetPlatforms returns the distinct set of platform tags observed across
// conversations and knowledge entries, sorted alphabetically.
func (s *StatsStore) GetPlatforms(ctx context.Context) ([]string, error) {
	var platforms []string
	err := s.store.Read(ctx, "get platforms", func(db *gorm.DB) error {
		return db.Raw(`
			SELECT DISTINCT platform FROM (
				SELECT platform FROM conversations
				UNION
				SELECT source_platform AS platform FROM knowledge WHERE source_platform IS NOT NULL
			) p
			ORDER BY platform
		`).Scan(&platforms).Error
	})
	if err != nil {
		return nil, wrapStorage("get platforms", err)
	}
	return platforms, nil
}
