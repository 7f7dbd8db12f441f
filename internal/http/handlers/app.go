package handlers

import (
	"encoding/json"
	"net/http"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/middleware"
	"vidgen/internal/videogen"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Service       *videogen.Service
	Accounts      domain.AccountRepository
	Logger        infra.Logger
	JWTSecret     string
	SignupCredits int
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
