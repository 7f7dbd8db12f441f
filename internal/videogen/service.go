package videogen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/providers/replicate"
)

// Model input defaults for stable-video-diffusion.
const (
	defaultVideoLength     = "14_frames_with_svd"
	defaultSizingStrategy  = "maintain_aspect_ratio"
	defaultMotionBucketID  = 127
	defaultFramesPerSecond = 6
)

// maxStoredErrorLen caps the provider diagnostic persisted on the job record.
const maxStoredErrorLen = 500

// PredictionRunner is the slice of the provider client the lifecycle needs.
// Submit and Wait are separate so the prediction id can be persisted between
// the two phases; Get serves the reconciliation sweeper.
type PredictionRunner interface {
	Submit(ctx context.Context, modelVersion string, input replicate.PredictionInput) (*replicate.Prediction, error)
	Wait(ctx context.Context, predictionID string) (*replicate.Prediction, error)
	Get(ctx context.Context, predictionID string) (*replicate.Prediction, error)
}

// Config tunes the lifecycle service.
type Config struct {
	ModelVersion   string
	GenerationCost int
}

// Service orchestrates the video job lifecycle: it admits a request against
// the account's credit balance, tracks the job through the record store,
// drives the external prediction to a terminal state, and reconciles the
// ledger with the outcome. The debit is deferred until confirmed success so a
// failed generation never costs the user credit.
type Service struct {
	accounts     domain.AccountRepository
	videos       domain.VideoRepository
	runner       PredictionRunner
	logger       infra.Logger
	modelVersion string
	cost         int
}

// NewService wires a lifecycle service.
func NewService(accounts domain.AccountRepository, videos domain.VideoRepository, runner PredictionRunner, logger infra.Logger, cfg Config) *Service {
	cost := cfg.GenerationCost
	if cost <= 0 {
		cost = 1
	}
	return &Service{
		accounts:     accounts,
		videos:       videos,
		runner:       runner,
		logger:       logger,
		modelVersion: cfg.ModelVersion,
		cost:         cost,
	}
}

// Generate runs one generation request to a terminal state and returns the
// job record. The call blocks for the duration of the external prediction.
//
// Errors: domain.ErrInvalidPrompt (no side effects), domain.ErrInsufficientCredit
// (no job created), domain.ErrProviderFailure (job marked FAILED, no debit).
func (s *Service) Generate(ctx context.Context, accountID, prompt string) (*domain.Video, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.ErrInvalidPrompt
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.HasCredit(s.cost) {
		return nil, domain.ErrInsufficientCredit
	}

	video := &domain.Video{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Prompt:    prompt,
		Status:    domain.VideoStatusPending,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	prediction, err := s.runner.Submit(ctx, s.modelVersion, replicate.PredictionInput{
		Prompt:          prompt,
		VideoLength:     defaultVideoLength,
		SizingStrategy:  defaultSizingStrategy,
		MotionBucketID:  defaultMotionBucketID,
		FramesPerSecond: defaultFramesPerSecond,
	})
	if err != nil {
		return s.failJob(ctx, video.ID, err.Error())
	}

	processing, err := s.videos.UpdateStatus(ctx, video.ID, domain.VideoStatusProcessing, domain.VideoStatusUpdate{
		PredictionID: &prediction.ID,
	})
	if err != nil {
		// A rejected PENDING -> PROCESSING move is a logic bug; abort without
		// touching the record further.
		s.logger.Error().Err(err).Str("video_id", video.ID).Msg("videogen: mark processing failed")
		return nil, err
	}
	video = processing

	terminal, err := s.runner.Wait(ctx, prediction.ID)
	if err != nil {
		return s.failJob(ctx, video.ID, err.Error())
	}
	if terminal.Status == replicate.StatusFailed {
		return s.failJob(ctx, video.ID, terminal.Error)
	}
	if terminal.Output.VideoURL() == "" {
		return s.failJob(ctx, video.ID, "provider returned no video output")
	}

	return s.completeJob(ctx, video.ID, video.AccountID, terminal.Output)
}

// Video returns one job scoped to the requesting account.
func (s *Service) Video(ctx context.Context, accountID, videoID string) (*domain.Video, error) {
	return s.videos.Get(ctx, videoID, accountID)
}

// Videos returns the account's jobs, newest first.
func (s *Service) Videos(ctx context.Context, accountID string) ([]*domain.Video, error) {
	return s.videos.ListByAccount(ctx, accountID)
}

// completeJob records the result and then applies the debit. The job is
// marked COMPLETED before the debit so a debit fault can never charge the
// user for a job the system failed to record as done; a failed debit after a
// recorded completion is logged loudly and otherwise accepted.
func (s *Service) completeJob(ctx context.Context, videoID, accountID string, output *replicate.Output) (*domain.Video, error) {
	video, err := s.videos.UpdateStatus(ctx, videoID, domain.VideoStatusCompleted, domain.VideoStatusUpdate{
		Result: &domain.VideoResult{
			VideoURL:     output.VideoURL(),
			ThumbnailURL: output.ThumbnailURL(),
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("video_id", videoID).Msg("videogen: mark completed failed")
		return nil, err
	}

	if err := s.accounts.Debit(ctx, accountID, s.cost); err != nil {
		s.logger.Error().Err(err).
			Str("video_id", videoID).
			Str("account_id", accountID).
			Int("amount", s.cost).
			Msg("videogen: debit after completed job failed")
	}
	return video, nil
}

// failJob moves the job to FAILED and surfaces the failure as
// domain.ErrProviderFailure for the caller.
func (s *Service) failJob(ctx context.Context, videoID, reason string) (*domain.Video, error) {
	reason = truncate(strings.TrimSpace(reason), maxStoredErrorLen)
	if err := s.markFailed(ctx, videoID, reason); err != nil && errors.Is(err, domain.ErrInvalidTransition) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, reason)
}

// markFailed records the terminal FAILED state with a truncated diagnostic.
// No debit is applied on any failure path.
func (s *Service) markFailed(ctx context.Context, videoID, reason string) error {
	reason = truncate(strings.TrimSpace(reason), maxStoredErrorLen)
	if _, err := s.videos.UpdateStatus(ctx, videoID, domain.VideoStatusFailed, domain.VideoStatusUpdate{
		ErrorMessage: &reason,
	}); err != nil {
		s.logger.Error().Err(err).Str("video_id", videoID).Msg("videogen: mark failed failed")
		return err
	}
	s.logger.Warn().Str("video_id", videoID).Str("reason", reason).Msg("videogen: generation failed")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
