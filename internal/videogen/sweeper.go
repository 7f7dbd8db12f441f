package videogen

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/providers/replicate"
)

// sweepConcurrency bounds the number of provider lookups in flight per sweep.
const sweepConcurrency = 4

// Sweeper periodically reconciles jobs stuck in PROCESSING, typically left
// behind by a process interruption mid-poll. Jobs with a stored prediction id
// are re-queried at the provider and finalized like a live request would be;
// jobs without one can never be resolved and are marked FAILED as lost.
type Sweeper struct {
	service    *Service
	interval   time.Duration
	staleAfter time.Duration
	logger     infra.Logger
}

// NewSweeper wires a reconciliation sweeper around the lifecycle service.
func NewSweeper(service *Service, interval, staleAfter time.Duration, logger infra.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Sweeper{service: service, interval: interval, staleAfter: staleAfter, logger: logger}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweeper: sweep failed")
			}
		}
	}
}

// Sweep performs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	stale, err := s.service.videos.ListStaleProcessing(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	s.logger.Info().Int("count", len(stale)).Msg("sweeper: reconciling stale jobs")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, video := range stale {
		video := video
		g.Go(func() error {
			s.reconcile(ctx, video)
			return nil
		})
	}
	return g.Wait()
}

// reconcile resolves one stale job. Faults are logged and left for the next
// pass rather than aborting the sweep.
func (s *Sweeper) reconcile(ctx context.Context, video *domain.Video) {
	if video.PredictionID == "" {
		if err := s.service.markFailed(ctx, video.ID, "lost: no prediction id recorded"); err == nil {
			s.logger.Warn().Str("video_id", video.ID).Msg("sweeper: job marked lost")
		}
		return
	}

	prediction, err := s.service.runner.Get(ctx, video.PredictionID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("video_id", video.ID).
			Str("prediction_id", video.PredictionID).
			Msg("sweeper: provider lookup failed, retrying next pass")
		return
	}

	switch {
	case prediction.InProgress():
		// Still running at the provider; leave it for a later pass.
		s.logger.Debug().Str("video_id", video.ID).Str("status", prediction.Status).Msg("sweeper: job still in progress")
	case prediction.Status == replicate.StatusSucceeded && prediction.Output.VideoURL() != "":
		if _, err := s.service.completeJob(ctx, video.ID, video.AccountID, prediction.Output); err != nil {
			s.logger.Error().Err(err).Str("video_id", video.ID).Msg("sweeper: recovery completion failed")
			return
		}
		s.logger.Info().Str("video_id", video.ID).Msg("sweeper: recovered completed job")
	default:
		reason := prediction.Error
		if reason == "" {
			reason = "prediction " + prediction.Status
		}
		if err := s.service.markFailed(ctx, video.ID, reason); err == nil {
			s.logger.Info().Str("video_id", video.ID).Msg("sweeper: finalized failed job")
		}
	}
}
