package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"vidgen/internal/domain"
)

// AccountStore implements domain.AccountRepository on SQLite.
type AccountStore struct {
	db *sql.DB
}

// Create inserts a new account record.
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (id, name, email, password_hash, locale, credits, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Name, account.Email, account.PasswordHash, account.Locale, account.Credits, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetByID fetches an account by id.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, email, password_hash, locale, credits, created_at, updated_at FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetByEmail fetches an account by its unique email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, email, password_hash, locale, credits, created_at, updated_at FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

// Debit atomically decrements the credit balance; the guard keeps it
// non-negative under concurrent debits.
func (s *AccountStore) Debit(ctx context.Context, id string, amount int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts SET credits = credits - ?, updated_at = ? WHERE id = ? AND credits >= ?`,
		amount, time.Now().UTC(), id, amount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInsufficientCredit
	}
	return nil
}

// Credit atomically increments the credit balance.
func (s *AccountStore) Credit(ctx context.Context, id string, amount int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts SET credits = credits + ?, updated_at = ? WHERE id = ?`,
		amount, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Locale, &a.Credits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
