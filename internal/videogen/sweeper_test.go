package videogen

import (
	"context"
	"errors"
	"testing"
	"time"

	"vidgen/internal/domain"
	"vidgen/internal/providers/replicate"
)

func stuckVideo(t *testing.T, videos *fakeVideos, accountID, predictionID string) *domain.Video {
	t.Helper()
	video := &domain.Video{
		ID:        "vid-" + predictionID + accountID,
		AccountID: accountID,
		Prompt:    "a cat walking",
		Status:    domain.VideoStatusPending,
	}
	if err := videos.Create(context.Background(), video); err != nil {
		t.Fatalf("create: %v", err)
	}
	var update domain.VideoStatusUpdate
	if predictionID != "" {
		update.PredictionID = &predictionID
	}
	if _, err := videos.UpdateStatus(context.Background(), video.ID, domain.VideoStatusProcessing, update); err != nil {
		t.Fatalf("to PROCESSING: %v", err)
	}
	// Backdate so the staleness cutoff catches it.
	videos.mu.Lock()
	videos.records[video.ID].UpdatedAt = time.Now().Add(-time.Hour)
	videos.mu.Unlock()
	return video
}

func newTestSweeper(accounts *fakeAccounts, videos *fakeVideos, runner *fakeRunner) *Sweeper {
	svc := newTestService(accounts, videos, runner)
	return NewSweeper(svc, time.Minute, 30*time.Minute, testLogger())
}

func TestSweepRecoversSucceededJob(t *testing.T) {
	accounts := newFakeAccounts(map[string]int{"acct-1": 3})
	videos := newFakeVideos()
	runner := &fakeRunner{getResult: &replicate.Prediction{
		ID:     "pred-9",
		Status: replicate.StatusSucceeded,
		Output: &replicate.Output{Video: "https://x/v.mp4"},
	}}
	video := stuckVideo(t, videos, "acct-1", "pred-9")

	sweeper := newTestSweeper(accounts, videos, runner)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got, err := videos.Get(context.Background(), video.ID, "acct-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.VideoStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.VideoURL != "https://x/v.mp4" {
		t.Fatalf("video url = %q", got.VideoURL)
	}
	if accounts.balance("acct-1") != 2 {
		t.Fatalf("balance = %d, want 2 (debited once on recovery)", accounts.balance("acct-1"))
	}
}

func TestSweepFailsLostJobWithoutPredictionID(t *testing.T) {
	accounts := newFakeAccounts(map[string]int{"acct-1": 3})
	videos := newFakeVideos()
	runner := &fakeRunner{}
	video := stuckVideo(t, videos, "acct-1", "")

	sweeper := newTestSweeper(accounts, videos, runner)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got, _ := videos.Get(context.Background(), video.ID, "acct-1")
	if got.Status != domain.VideoStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("expected lost reason recorded")
	}
	if runner.gets != 0 {
		t.Fatalf("provider queried without a prediction id")
	}
	if accounts.balance("acct-1") != 3 {
		t.Fatalf("balance changed for lost job")
	}
}

func TestSweepFinalizesProviderReportedFailure(t *testing.T) {
	accounts := newFakeAccounts(map[string]int{"acct-1": 3})
	videos := newFakeVideos()
	runner := &fakeRunner{getResult: &replicate.Prediction{
		ID:     "pred-9",
		Status: replicate.StatusFailed,
		Error:  "NSFW content",
	}}
	video := stuckVideo(t, videos, "acct-1", "pred-9")

	sweeper := newTestSweeper(accounts, videos, runner)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got, _ := videos.Get(context.Background(), video.ID, "acct-1")
	if got.Status != domain.VideoStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage != "NSFW content" {
		t.Fatalf("diagnostic = %q", got.ErrorMessage)
	}
	if accounts.balance("acct-1") != 3 {
		t.Fatalf("balance changed for failed job")
	}
}

func TestSweepLeavesInProgressJobs(t *testing.T) {
	accounts := newFakeAccounts(map[string]int{"acct-1": 3})
	videos := newFakeVideos()
	runner := &fakeRunner{getResult: &replicate.Prediction{ID: "pred-9", Status: replicate.StatusProcessing}}
	video := stuckVideo(t, videos, "acct-1", "pred-9")

	sweeper := newTestSweeper(accounts, videos, runner)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got, _ := videos.Get(context.Background(), video.ID, "acct-1")
	if got.Status != domain.VideoStatusProcessing {
		t.Fatalf("status = %s, want PROCESSING left untouched", got.Status)
	}
}

func TestSweepRetriesOnProviderLookupError(t *testing.T) {
	accounts := newFakeAccounts(map[string]int{"acct-1": 3})
	videos := newFakeVideos()
	runner := &fakeRunner{getErr: errors.New("replicate: status 502: upstream down")}
	video := stuckVideo(t, videos, "acct-1", "pred-9")

	sweeper := newTestSweeper(accounts, videos, runner)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got, _ := videos.Get(context.Background(), video.ID, "acct-1")
	if got.Status != domain.VideoStatusProcessing {
		t.Fatalf("status = %s, want PROCESSING retained for next pass", got.Status)
	}
}
