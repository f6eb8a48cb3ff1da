// Package usage serves the aggregated token statistics shown on the dashboard.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/apihub/internal/cache"
	"github.com/kiranshivaraju/apihub/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	ModelWindowDays = 30
	DailyWindowDays = 7
)

// StatsReader is the store side the service needs.
type StatsReader interface {
	ModelUsageSince(ctx context.Context, since time.Time) ([]*models.ModelUsage, error)
	DailyUsageSince(ctx context.Context, since time.Time) ([]*models.DailyUsage, error)
}

// StatsService reads aggregates from the store, caching the combined payload
// for ttl. A zero ttl or nil cache disables caching.
type StatsService struct {
	store StatsReader
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewStatsService(s StatsReader, c cache.Cache, ttl time.Duration) *StatsService {
	return &StatsService{store: s, cache: c, ttl: ttl, now: time.Now}
}

// Stats returns per-model totals over the last 30 days and per-day totals over
// the last 7 days, both counted in UTC calendar days including today.
func (s *StatsService) Stats(ctx context.Context) (*models.UsageStats, error) {
	today := s.now().UTC()
	day := today.Format(time.DateOnly)
	key := cache.UsageStatsKey(day)

	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	stats := &models.UsageStats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.store.ModelUsageSince(gctx, today.AddDate(0, 0, -(ModelWindowDays - 1)))
		if err != nil {
			return fmt.Errorf("model usage: %w", err)
		}
		stats.Models = m
		return nil
	})
	g.Go(func() error {
		d, err := s.store.DailyUsageSince(gctx, today.AddDate(0, 0, -(DailyWindowDays - 1)))
		if err != nil {
			return fmt.Errorf("daily usage: %w", err)
		}
		stats.Daily = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if stats.Models == nil {
		stats.Models = []*models.ModelUsage{}
	}
	if stats.Daily == nil {
		stats.Daily = []*models.DailyUsage{}
	}

	s.toCache(ctx, key, stats)
	return stats, nil
}

// Invalidate drops the cached payload for the UTC day of at, so the next
// Stats call reads fresh aggregates. Failures are logged.
func (s *StatsService) Invalidate(ctx context.Context, at time.Time) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	key := cache.UsageStatsKey(at.UTC().Format(time.DateOnly))
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("stats cache invalidation failed", "key", key, "error", err)
	}
}

func (s *StatsService) fromCache(ctx context.Context, key string) (*models.UsageStats, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("stats cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var stats models.UsageStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		slog.Warn("stats cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &stats, true
}

func (s *StatsService) toCache(ctx context.Context, key string, stats *models.UsageStats) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		slog.Warn("stats cache write failed", "key", key, "error", err)
	}
}
