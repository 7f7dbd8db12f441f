package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidgen/internal/domain"
)

// VideoStore implements domain.VideoRepository on SQLite.
type VideoStore struct {
	db *sql.DB
}

const videoColumns = `id, account_id, prompt, status, video_url, thumbnail_url, prediction_id, error_message, created_at, updated_at`

// Create inserts a new video job record.
func (s *VideoStore) Create(ctx context.Context, video *domain.Video) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO videos (id, account_id, prompt, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		video.ID, video.AccountID, video.Prompt, video.Status, now, now)
	if err != nil {
		return err
	}
	video.CreatedAt = now
	video.UpdatedAt = now
	return nil
}

// UpdateStatus moves a job to the given status under the monotonic lifecycle
// rules. The current status is part of the UPDATE predicate so a terminal or
// out-of-order job is never touched.
func (s *VideoStore) UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, update domain.VideoStatusUpdate) (*domain.Video, error) {
	allowed := status.AllowedFrom()
	if len(allowed) == 0 {
		return nil, domain.ErrInvalidTransition
	}

	placeholders := make([]string, len(allowed))
	args := []any{string(status)}
	if update.Result != nil {
		args = append(args, update.Result.VideoURL, update.Result.ThumbnailURL)
	} else {
		args = append(args, nil, nil)
	}
	args = append(args, nullable(update.PredictionID), nullable(update.ErrorMessage), time.Now().UTC(), videoID)
	for i, st := range allowed {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
UPDATE videos
SET status = ?,
    video_url = COALESCE(?, video_url),
    thumbnail_url = COALESCE(?, thumbnail_url),
    prediction_id = COALESCE(?, prediction_id),
    error_message = COALESCE(?, error_message),
    updated_at = ?
WHERE id = ?
  AND status IN (%s)`, strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM videos WHERE id = ?`, videoID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidTransition
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, videoID)
	return scanVideo(row)
}

// Get fetches a job scoped by owning account.
func (s *VideoStore) Get(ctx context.Context, videoID, accountID string) (*domain.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ? AND account_id = ?`, videoID, accountID)
	return scanVideo(row)
}

// ListByAccount returns all jobs for an account, newest first.
func (s *VideoStore) ListByAccount(ctx context.Context, accountID string) ([]*domain.Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE account_id = ? ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVideos(rows)
}

// ListStaleProcessing returns jobs stuck in PROCESSING since before olderThan.
func (s *VideoStore) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*domain.Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC`, domain.VideoStatusProcessing, olderThan.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVideos(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectVideos(rows *sql.Rows) ([]*domain.Video, error) {
	var videos []*domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

func scanVideo(row rowScanner) (*domain.Video, error) {
	var v domain.Video
	var videoURL, thumbnailURL, predictionID, errorMessage sql.NullString
	if err := row.Scan(
		&v.ID,
		&v.AccountID,
		&v.Prompt,
		&v.Status,
		&videoURL,
		&thumbnailURL,
		&predictionID,
		&errorMessage,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.VideoURL = videoURL.String
	v.ThumbnailURL = thumbnailURL.String
	v.PredictionID = predictionID.String
	v.ErrorMessage = errorMessage.String
	return &v, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
