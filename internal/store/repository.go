/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payment-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction identifiers.
 * - github.com/shopspring/decimal: For monetary aggregates.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
)

// OutboxInsert describes one domain event to enqueue in the outbox table as
// part of the same database transaction as a business mutation. Payload is
// marshalled to JSON by the repository.
type OutboxInsert struct {
	AggregateType string
	AggregateID   string
	EventType     string
	CorrelationID string
	Payload       interface{}
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Transaction methods. Every status mutation enqueues its outbox events in
	// the same database transaction, closing the dual-write gap.
	CreateTransactionWithEvent(ctx context.Context, txn *domain.Transaction, check *domain.FraudCheck, events ...OutboxInsert) error
	// UpdateTransactionStatusWithEvent transitions a transaction from one of
	// the expected statuses to the target status. It reports false when no row
	// matched, which callers use to serialize mutations per transaction id
	// (duplicate saga signals lose the conditional update and back off).
	UpdateTransactionStatusWithEvent(ctx context.Context, transactionID uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, events ...OutboxInsert) (bool, error)
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	// EnqueueOutboxEvents records audit events that carry no status mutation,
	// such as the completion of a compensation credit.
	EnqueueOutboxEvents(ctx context.Context, events ...OutboxInsert) error

	// Fraud history lookups.
	CountBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error)
	CountActiveBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error)
	SumSettledBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error)
	HasTransferToDestination(ctx context.Context, sourceAccountID uuid.UUID, destinationIBAN string) (bool, error)

	// Fraud reference data (externally managed, read-only here).
	FindAccountLimit(ctx context.Context, accountID uuid.UUID, currency string) (*domain.AccountLimit, error)
	IsIBANBlacklisted(ctx context.Context, iban string) (bool, error)

	// Outbox methods, used only by the relay.
	ClaimPendingOutboxEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, eventID int64) error
	MarkOutboxFailed(ctx context.Context, eventID int64, reason string, maxRetries int) error
}
