package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rentdesk/rentdesk/internal/platform/cache"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Service builds the dashboard snapshot.
type Service struct {
	repo  Repository
	cache *cache.Versioned
	group singleflight.Group
	loc   *time.Location
	now   func() time.Time
}

// NewService wires the repository with the versioned cache. A nil cache
// recomputes on every request.
func NewService(repo Repository, c *cache.Versioned, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, cache: c, loc: loc, now: time.Now}
}

// Stats returns today's snapshot, from cache when available. Concurrent
// misses for the same key share one computation, which outlives the request
// that started it.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	today := shared.CalendarDate(s.now().In(s.loc))
	key, err := s.cache.Key(ctx, "stats", today.Format(shared.DateLayout))
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard cache key: %w", err)
	}
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var stats Stats
		err := s.cache.FetchJSON(detached, key, &stats, func(ctx context.Context) (any, error) {
			return s.build(ctx, today)
		})
		return stats, err
	})
	select {
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Stats{}, res.Err
		}
		return res.Val.(Stats), nil
	}
}

func (s *Service) build(ctx context.Context, today time.Time) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	stats := Stats{AsOf: today}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.Counts(ctx, today)
		if err != nil {
			return fmt.Errorf("counts: %w", err)
		}
		stats.Counts = counts
		return nil
	})
	g.Go(func() error {
		revenue, err := s.repo.MonthlyRevenue(ctx)
		if err != nil {
			return fmt.Errorf("monthly revenue: %w", err)
		}
		stats.MonthlyRevenue = revenue
		return nil
	})
	g.Go(func() error {
		expiring, err := s.repo.Expiring(ctx, today, today.AddDate(0, 0, ExpiryHorizon), ListSize)
		if err != nil {
			return fmt.Errorf("expiring contracts: %w", err)
		}
		stats.Expiring = expiring
		return nil
	})
	g.Go(func() error {
		overdue, err := s.repo.OldestOverdue(ctx, today, ListSize)
		if err != nil {
			return fmt.Errorf("overdue invoices: %w", err)
		}
		stats.Overdue = overdue
		return nil
	})
	g.Go(func() error {
		pending, err := s.repo.PendingPayments(ctx)
		if err != nil {
			return fmt.Errorf("pending payments: %w", err)
		}
		stats.Pending = pending
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.RecentContracts(ctx, ListSize)
		if err != nil {
			return fmt.Errorf("recent contracts: %w", err)
		}
		stats.Recent = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
