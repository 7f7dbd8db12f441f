package domain

import "time"

// DefaultSignupCredits is the balance granted to a freshly registered account.
const DefaultSignupCredits = 5

// Account represents an authenticated user within the platform. The credit
// balance is owned by the ledger operations on AccountRepository; nothing else
// mutates it.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Locale       string
	Credits      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCredit reports whether the account can afford the given cost.
func (a Account) HasCredit(cost int) bool {
	return a.Credits >= cost
}
