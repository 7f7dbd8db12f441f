package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vidgen/internal/domain"
)

type videoGenerateRequest struct {
	Prompt string `json:"prompt"`
}

type videoResponse struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	Status       string    `json:"status"`
	VideoURL     string    `json:"video_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toVideoResponse(v *domain.Video) videoResponse {
	return videoResponse{
		ID:           v.ID,
		Prompt:       v.Prompt,
		Status:       string(v.Status),
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		ErrorMessage: v.ErrorMessage,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

// VideosGenerate runs one generation request to completion. The response is
// held open for the duration of the external prediction.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req videoGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	video, err := a.Service.Generate(r.Context(), accountID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPrompt):
			a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		case errors.Is(err, domain.ErrInsufficientCredit):
			a.error(w, http.StatusForbidden, "insufficient_credit", "not enough credits")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusUnauthorized, "unauthorized", "unknown account")
		case errors.Is(err, domain.ErrProviderFailure):
			a.error(w, http.StatusBadGateway, "generation_failed", "video generation failed, no credit was charged")
		default:
			a.Logger.Error().Err(err).Msg("generate failed")
			a.error(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	a.json(w, http.StatusCreated, toVideoResponse(video))
}

// VideoByID returns one of the caller's jobs.
func (a *App) VideoByID(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	videoID := chi.URLParam(r, "video_id")
	if videoID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "video_id required")
		return
	}
	video, err := a.Service.Video(r.Context(), accountID, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		a.Logger.Error().Err(err).Msg("load video failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	a.json(w, http.StatusOK, toVideoResponse(video))
}

// VideosList returns the caller's jobs, newest first.
func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	videos, err := a.Service.Videos(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list videos failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	items := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		items = append(items, toVideoResponse(v))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
