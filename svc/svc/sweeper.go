package svc

import (
	"context"
	"time"

	"thoth/metrics"
	"thoth/svc/db"
	"thoth/svc/files"
	"thoth/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Sweeper removes paste directories that no committed paste references,
// the leftovers of a create that failed or crashed before its commit.
type Sweeper struct {
	db      *db.SQLite
	files   *files.Store
	grace   time.Duration
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSweeper removes at most perSecond directories per second. Directories
// younger than grace are never touched, since their create may still be
// running.
func NewSweeper(sqlDB *db.SQLite, fs *files.Store, grace time.Duration, perSecond float64) *Sweeper {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Sweeper{
		db:      sqlDB,
		files:   fs,
		grace:   grace,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		now:     time.Now,
	}
}
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := s.files.List()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.grace)
	removed := 0
	for _, e := range entries {
		if e.ModTime.After(cutoff) {
			continue
		}
		exists, err := s.db.Exists(ctx, e.ID)
		if err != nil {
			return removed, errors.Wrapf(err, "check %s", e.ID)
		}
		if exists {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return removed, err
		}
		if err := s.files.Remove(e.ID); err != nil {
			util.Warn().Err(err).Str("id", e.ID).Msg("failed to remove orphaned paste directory")
			continue
		}
		removed++
		metrics.OrphansRemoved.Inc()
		util.Debug().Str("id", e.ID).Time("modified", e.ModTime).Msg("orphaned paste directory removed")
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	sweepID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, sweepID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", sweepID).
		Dur("interval", interval).
		Dur("grace", s.grace).
		Msg("orphan sweeper started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", sweepID).
				Msg("orphan sweeper shutting down")
			return
		case <-ticker.C:
			metrics.PruneCycles.Inc()
			removed, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				util.Error().
					Err(err).
					Str("request_id", sweepID).
					Msg("orphan sweep failed")
			} else if removed > 0 {
				util.Info().
					Int("removed", removed).
					Str("request_id", sweepID).
					Msg("orphan sweep completed")
			}
		}
	}
}
