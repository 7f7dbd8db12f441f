package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidgen/internal/domain"
)

// VideoRepositoryPG implements domain.VideoRepository backed by PostgreSQL.
type VideoRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new video repository backed by PostgreSQL.
func NewVideoRepository(pool *pgxpool.Pool) *VideoRepositoryPG {
	return &VideoRepositoryPG{pool: pool}
}

const videoColumns = `id, account_id, prompt, status, video_url, thumbnail_url, prediction_id, error_message, created_at, updated_at`

// Create inserts a new video job record.
func (r *VideoRepositoryPG) Create(ctx context.Context, video *domain.Video) error {
	query := `
INSERT INTO videos (id, account_id, prompt, status)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query, video.ID, video.AccountID, video.Prompt, video.Status)
	return row.Scan(&video.CreatedAt, &video.UpdatedAt)
}

// UpdateStatus moves a job to the given status, applying result locations,
// prediction id, and error message when provided. The guard on the current
// status enforces the monotonic lifecycle in the same statement as the write;
// a job already in another state is never touched.
func (r *VideoRepositoryPG) UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, update domain.VideoStatusUpdate) (*domain.Video, error) {
	allowed := status.AllowedFrom()
	if len(allowed) == 0 {
		return nil, domain.ErrInvalidTransition
	}
	from := make([]string, 0, len(allowed))
	for _, s := range allowed {
		from = append(from, string(s))
	}

	var videoURL, thumbnailURL *string
	if update.Result != nil {
		videoURL = &update.Result.VideoURL
		thumbnailURL = &update.Result.ThumbnailURL
	}

	query := `
UPDATE videos
SET status = $2,
    video_url = COALESCE($3, video_url),
    thumbnail_url = COALESCE($4, thumbnail_url),
    prediction_id = COALESCE($5, prediction_id),
    error_message = COALESCE($6, error_message),
    updated_at = NOW()
WHERE id = $1
  AND status = ANY($7)
RETURNING ` + videoColumns + `;`

	row := r.pool.QueryRow(ctx, query, videoID, status, videoURL, thumbnailURL, update.PredictionID, update.ErrorMessage, from)
	video, err := scanVideo(row)
	if err == nil {
		return video, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// No row matched: either the job does not exist or it is in a state the
	// transition rules reject. Distinguish the two for the caller.
	var current domain.VideoStatus
	lookupErr := r.pool.QueryRow(ctx, `SELECT status FROM videos WHERE id = $1`, videoID).Scan(&current)
	if lookupErr != nil {
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, lookupErr
	}
	return nil, domain.ErrInvalidTransition
}

// Get fetches a job scoped by owning account. Jobs owned by other accounts
// are reported as missing.
func (r *VideoRepositoryPG) Get(ctx context.Context, videoID, accountID string) (*domain.Video, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1 AND account_id = $2`, videoID, accountID)
	return scanVideo(row)
}

// ListByAccount returns all jobs for an account, newest first.
func (r *VideoRepositoryPG) ListByAccount(ctx context.Context, accountID string) ([]*domain.Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVideos(rows)
}

// ListStaleProcessing returns jobs stuck in PROCESSING since before olderThan.
func (r *VideoRepositoryPG) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*domain.Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC`, domain.VideoStatusProcessing, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVideos(rows)
}

func collectVideos(rows pgx.Rows) ([]*domain.Video, error) {
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

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var v domain.Video
	var videoURL, thumbnailURL, predictionID, errorMessage *string
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.VideoURL = deref(videoURL)
	v.ThumbnailURL = deref(thumbnailURL)
	v.PredictionID = deref(predictionID)
	v.ErrorMessage = deref(errorMessage)
	return &v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
