/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL queries for the transactions, fraud_checks, account_limits
 * and blacklisted_ibans tables. Outbox queries live in outbox_repository.go.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrAccountLimitNotFound = errors.New("account limit not found")
	ErrOutboxEventNotFound  = errors.New("outbox event not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateTransactionWithEvent persists a new transaction, its optional fraud
// check, and any outbox events in a single database transaction. Either all
// rows are committed or none are.
func (r *PostgresRepository) CreateTransactionWithEvent(ctx context.Context, txn *domain.Transaction, check *domain.FraudCheck, events ...OutboxInsert) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO transactions (id, source_account_id, destination_iban, amount, currency, type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, query,
		txn.ID,
		txn.SourceAccountID,
		txn.DestinationIBAN,
		txn.Amount,
		txn.Currency,
		txn.Type,
		txn.Status,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return err
	}

	if check != nil {
		checkQuery := `
			INSERT INTO fraud_checks (id, transaction_id, risk_score, violated_rule, decision)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, checkQuery,
			check.ID,
			check.TransactionID,
			check.RiskScore,
			check.ViolatedRule,
			check.Decision,
		); err != nil {
			return err
		}
	}

	for _, event := range events {
		if err := enqueueOutboxEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// UpdateTransactionStatusWithEvent performs a conditional status transition.
// The WHERE clause on the prior status serializes mutations per transaction id:
// only one actor can win a given transition, so duplicate delivery of a saga
// signal cannot debit or compensate twice.
func (r *PostgresRepository) UpdateTransactionStatusWithEvent(ctx context.Context, transactionID uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, events ...OutboxInsert) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	fromStatuses := make([]string, 0, len(from))
	for _, s := range from {
		fromStatuses = append(fromStatuses, string(s))
	}

	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`, to, transactionID, fromStatuses)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Another actor already moved the transaction; nothing to emit.
		return false, nil
	}

	for _, event := range events {
		if err := enqueueOutboxEventTx(ctx, tx, event); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FindTransactionByID retrieves a transaction by its ID.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var txn domain.Transaction
	query := `
		SELECT id, source_account_id, destination_iban, amount, currency, type, status, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&txn.ID,
		&txn.SourceAccountID,
		&txn.DestinationIBAN,
		&txn.Amount,
		&txn.Currency,
		&txn.Type,
		&txn.Status,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// CountBySourceSince counts every transfer attempt from a source account in the
// trailing window, regardless of outcome. Used by the hard velocity rule.
func (r *PostgresRepository) CountBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM transactions WHERE source_account_id = $1 AND created_at > $2`
	if err := r.db.QueryRow(ctx, query, sourceAccountID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountActiveBySourceSince counts non-rejected transfers in the trailing
// window. Used by the velocity scoring strategy.
func (r *PostgresRepository) CountActiveBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE source_account_id = $1 AND created_at > $2 AND status <> $3
	`
	if err := r.db.QueryRow(ctx, query, sourceAccountID, since, domain.StatusRejected).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SumSettledBySourceSince sums the validated and completed amounts for a
// source account and currency since the given instant.
func (r *PostgresRepository) SumSettledBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE source_account_id = $1
		  AND currency = $2
		  AND created_at > $3
		  AND status = ANY($4)
	`
	settled := []string{string(domain.StatusValidated), string(domain.StatusCompleted)}
	if err := r.db.QueryRow(ctx, query, sourceAccountID, currency, since, settled).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// HasTransferToDestination reports whether the source account has ever sent
// funds to the destination before.
func (r *PostgresRepository) HasTransferToDestination(ctx context.Context, sourceAccountID uuid.UUID, destinationIBAN string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE source_account_id = $1 AND destination_iban = $2
		)
	`
	if err := r.db.QueryRow(ctx, query, sourceAccountID, destinationIBAN).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FindAccountLimit retrieves the transfer ceilings for an account and currency.
func (r *PostgresRepository) FindAccountLimit(ctx context.Context, accountID uuid.UUID, currency string) (*domain.AccountLimit, error) {
	var limit domain.AccountLimit
	query := `
		SELECT account_id, currency, daily_limit, monthly_limit
		FROM account_limits
		WHERE account_id = $1 AND currency = $2
	`
	err := r.db.QueryRow(ctx, query, accountID, currency).Scan(
		&limit.AccountID,
		&limit.Currency,
		&limit.DailyLimit,
		&limit.MonthlyLimit,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountLimitNotFound
		}
		return nil, err
	}
	return &limit, nil
}

// IsIBANBlacklisted reports whether the destination is actively blacklisted.
func (r *PostgresRepository) IsIBANBlacklisted(ctx context.Context, iban string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM blacklisted_ibans WHERE iban = $1 AND active = TRUE)`
	if err := r.db.QueryRow(ctx, query, iban).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
