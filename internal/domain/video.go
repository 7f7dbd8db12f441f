package domain

import "time"

// VideoStatus enumerates video job lifecycle states.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "PENDING"
	VideoStatusProcessing VideoStatus = "PROCESSING"
	VideoStatusCompleted  VideoStatus = "COMPLETED"
	VideoStatusFailed     VideoStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// allowedFrom maps a target status to the statuses a job may hold beforehand.
// FAILED is reachable from PENDING as well so submission faults can finalize
// a job that never made it to the provider.
var allowedFrom = map[VideoStatus][]VideoStatus{
	VideoStatusProcessing: {VideoStatusPending},
	VideoStatusCompleted:  {VideoStatusProcessing},
	VideoStatusFailed:     {VideoStatusPending, VideoStatusProcessing},
}

// AllowedFrom returns the set of statuses from which a job may move to s.
func (s VideoStatus) AllowedFrom() []VideoStatus {
	return allowedFrom[s]
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	for _, from := range allowedFrom[next] {
		if from == s {
			return true
		}
	}
	return false
}

// Video encapsulates one user-initiated generation request and its tracked
// lifecycle. Result locations are set iff the status is COMPLETED; the
// provider-assigned prediction id is recorded once the submission is accepted
// so stuck jobs can be reconciled later.
type Video struct {
	ID           string
	AccountID    string
	Prompt       string
	Status       VideoStatus
	VideoURL     string
	ThumbnailURL string
	PredictionID string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VideoResult carries the output locations applied when a job completes.
type VideoResult struct {
	VideoURL     string
	ThumbnailURL string
}
