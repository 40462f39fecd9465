package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/sentinel"
)

// PostgresLedger persists balances in PostgreSQL. Transfers run inside a
// transaction with the source row locked, so concurrent claims against one
// escrow account serialize on the database.
//
// Schema:
//
//	CREATE TABLE custody_balances (
//	    account TEXT PRIMARY KEY,
//	    balance BIGINT NOT NULL CHECK (balance >= 0)
//	);
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Mint(ctx context.Context, account id.Address, amount uint64) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO custody_balances (account, balance)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET
			balance = custody_balances.balance + EXCLUDED.balance
	`, account.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Transfer(ctx context.Context, from, to id.Address, amount uint64) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM custody_balances WHERE account = $1 FOR UPDATE
	`, from.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && balance < int64(amount)) {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, sentinel.ErrInsufficientFunds)
	}
	if err != nil {
		return fmt.Errorf("lock source balance: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE custody_balances SET balance = balance - $2 WHERE account = $1
	`, from.String(), int64(amount)); err != nil {
		return fmt.Errorf("debit source: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO custody_balances (account, balance)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET
			balance = custody_balances.balance + EXCLUDED.balance
	`, to.String(), int64(amount)); err != nil {
		return fmt.Errorf("credit destination: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Balance(ctx context.Context, account id.Address) (uint64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `
		SELECT balance FROM custody_balances WHERE account = $1
	`, account.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return uint64(balance), nil
}
