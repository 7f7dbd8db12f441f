package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidgen/internal/domain"
)

// AccountRepositoryPG implements domain.AccountRepository backed by PostgreSQL.
type AccountRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepositoryPG.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepositoryPG {
	return &AccountRepositoryPG{pool: pool}
}

// Create inserts a new account record.
func (r *AccountRepositoryPG) Create(ctx context.Context, account *domain.Account) error {
	query := `
INSERT INTO accounts (id, name, email, password_hash, locale, credits)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Locale,
		account.Credits,
	)
	if err := row.Scan(&account.CreatedAt, &account.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetByID fetches an account by UUID.
func (r *AccountRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, email, password_hash, locale, credits, created_at, updated_at FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail fetches an account by its unique email.
func (r *AccountRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, email, password_hash, locale, credits, created_at, updated_at FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// Debit atomically decrements the credit balance. The WHERE guard keeps the
// balance non-negative even when concurrent debits raced past admission.
func (r *AccountRepositoryPG) Debit(ctx context.Context, id string, amount int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET credits = credits - $2,
    updated_at = NOW()
WHERE id = $1
  AND credits >= $2;
`, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInsufficientCredit
	}
	return nil
}

// Credit atomically increments the credit balance.
func (r *AccountRepositoryPG) Credit(ctx context.Context, id string, amount int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET credits = credits + $2,
    updated_at = NOW()
WHERE id = $1;
`, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Locale, &a.Credits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
