package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vidgen/internal/domain"
	"vidgen/internal/middleware"
)

const tokenTTL = 24 * time.Hour

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Locale  string `json:"locale"`
	Credits int    `json:"credits"`
}

func toAccountResponse(acct *domain.Account) accountResponse {
	return accountResponse{
		ID:      acct.ID,
		Name:    acct.Name,
		Email:   acct.Email,
		Locale:  acct.Locale,
		Credits: acct.Credits,
	}
}

// Register creates an account with the signup credit grant.
func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		a.error(w, http.StatusBadRequest, "bad_request", "name, email and a password of at least 6 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.Logger.Error().Err(err).Msg("hash password failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	acct := &domain.Account{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Locale:       middleware.LocaleFromContext(r.Context()),
		Credits:      a.SignupCredits,
	}
	if err := a.Accounts.Create(r.Context(), acct); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			a.error(w, http.StatusBadRequest, "duplicate_email", "email already registered")
			return
		}
		a.Logger.Error().Err(err).Msg("create account failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	a.json(w, http.StatusCreated, toAccountResponse(acct))
}

// Login verifies credentials and issues a signed token.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	acct, err := a.Accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		a.Logger.Error().Err(err).Msg("load account failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	token, err := middleware.SignJWT(a.JWTSecret, middleware.TokenClaims{
		Sub:      acct.ID,
		Email:    acct.Email,
		Locale:   acct.Locale,
		Exp:      time.Now().Add(tokenTTL).Unix(),
		Issuer:   "vidgen",
		Audience: "vidgen-api",
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign token failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"token":   token,
		"account": toAccountResponse(acct),
	})
}

// Me returns the authenticated account, including its live credit balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	acct, err := a.Accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "unknown account")
			return
		}
		a.Logger.Error().Err(err).Msg("load account failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	a.json(w, http.StatusOK, toAccountResponse(acct))
}
