package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidPrompt      = errors.New("invalid prompt")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrProviderFailure    = errors.New("provider failure")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateEmail     = errors.New("email already registered")
)
