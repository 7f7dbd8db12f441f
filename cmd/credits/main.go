package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vidgen/internal/adapter/repo"
	"vidgen/internal/adapter/sqlite"
	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

// credits grants or removes account credits from the command line.
//
//	credits -email user@example.com -grant 10
//	credits -id 6b4e... -debit 3
func main() {
	var (
		idFlag    string
		emailFlag string
		grantFlag int
		debitFlag int
	)

	flag.StringVar(&idFlag, "id", "", "account ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "account email to update")
	flag.IntVar(&grantFlag, "grant", 0, "credits to add to the balance")
	flag.IntVar(&debitFlag, "debit", 0, "credits to remove from the balance")
	flag.Parse()

	accountID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)

	if accountID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if grantFlag <= 0 && debitFlag <= 0 {
		exitWithError(errors.New("one of -grant or -debit must be positive"))
	}
	if grantFlag > 0 && debitFlag > 0 {
		exitWithError(errors.New("-grant and -debit are mutually exclusive"))
	}

	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accounts, cleanup, err := openAccounts(ctx)
	if err != nil {
		exitWithError(err)
	}
	defer cleanup()

	var acct *domain.Account
	if accountID != "" {
		acct, err = accounts.GetByID(ctx, accountID)
	} else {
		acct, err = accounts.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load account: %w", err))
	}

	switch {
	case grantFlag > 0:
		err = accounts.Credit(ctx, acct.ID, grantFlag)
	default:
		err = accounts.Debit(ctx, acct.ID, debitFlag)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to update balance: %w", err))
	}

	updated, err := accounts.GetByID(ctx, acct.ID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to reload account: %w", err))
	}
	fmt.Printf("Account %s (%s) balance: %d -> %d\n", updated.ID, updated.Email, acct.Credits, updated.Credits)
}

func openAccounts(ctx context.Context) (domain.AccountRepository, func(), error) {
	if dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); dbURL != "" {
		pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect database: %w", err)
		}
		return repo.NewAccountRepository(pool), pool.Close, nil
	}
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		return nil, nil, errors.New("one of DATABASE_URL or SQLITE_PATH is required")
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return store.Accounts(), func() { _ = store.Close() }, nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
