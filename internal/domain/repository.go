package domain

import (
	"context"
	"time"
)

// AccountRepository defines account access plus the credit ledger operations.
// Debit and Credit are the only balance mutators and must be atomic
// conditional updates; a debit that would drive the balance negative fails
// with ErrInsufficientCredit even when admission already checked the balance.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Debit(ctx context.Context, id string, amount int) error
	Credit(ctx context.Context, id string, amount int) error
}

// VideoStatusUpdate carries the optional fields applied alongside a status
// change. Nil fields leave the stored value untouched.
type VideoStatusUpdate struct {
	Result       *VideoResult
	PredictionID *string
	ErrorMessage *string
}

// VideoRepository defines persistence for video jobs. UpdateStatus enforces
// the monotonic PENDING -> PROCESSING -> {COMPLETED|FAILED} lifecycle and
// fails with ErrInvalidTransition on any other move. Reads are scoped by
// account id; a job owned by someone else is indistinguishable from a
// missing one.
type VideoRepository interface {
	Create(ctx context.Context, video *Video) error
	UpdateStatus(ctx context.Context, videoID string, status VideoStatus, update VideoStatusUpdate) (*Video, error)
	Get(ctx context.Context, videoID, accountID string) (*Video, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Video, error)
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*Video, error)
}
