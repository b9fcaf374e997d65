// Package dashboard builds the headline numbers shown on the landing page.
package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intex-outreach/backend/internal/apperr"
)

// Stats are the program-wide counts.
type Stats struct {
	Participants   int       `json:"participants"`
	UpcomingEvents int       `json:"upcoming_events"`
	Milestones     int       `json:"milestones"`
	DonationTotal  float64   `json:"donation_total"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Sources supply each count.
type Sources struct {
	Participants   func(context.Context) (int, error)
	UpcomingEvents func(context.Context) (int, error)
	Milestones     func(context.Context) (int, error)
	DonationTotal  func(context.Context) (float64, error)
}

// Cache stores computed stats. *redis.Client from pkg/redis implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

const (
	cacheKey = "outreach:dashboard:stats"
	cacheTTL = time.Minute
)

// Service computes Stats.
type Service struct {
	src    Sources
	cache  Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a dashboard service. cache may be nil.
func NewService(src Sources, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{src: src, cache: cache, logger: logger, now: time.Now}
}

// Stats returns cached counts when fresh and recomputes them otherwise.
// Cache failures only cost a recomputation.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if s.cache != nil {
		found, err := s.cache.GetJSON(ctx, cacheKey, &st)
		if err != nil {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		} else if found {
			return st, nil
		}
	}
	st, err := s.compute(ctx)
	if err != nil {
		return Stats{}, apperr.Storage("dashboard stats", err)
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, st, cacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return st, nil
}

func (s *Service) compute(ctx context.Context) (Stats, error) {
	st := Stats{ComputedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	count := func(dst *int, fn func(context.Context) (int, error)) {
		if fn == nil {
			return
		}
		g.Go(func() error {
			n, err := fn(ctx)
			*dst = n
			return err
		})
	}
	count(&st.Participants, s.src.Participants)
	count(&st.UpcomingEvents, s.src.UpcomingEvents)
	count(&st.Milestones, s.src.Milestones)
	if s.src.DonationTotal != nil {
		g.Go(func() error {
			t, err := s.src.DonationTotal(ctx)
			st.DonationTotal = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return st, nil
}
