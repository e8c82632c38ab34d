/**
 * @description
 * Event models for the payment-service: the transactional outbox row, the
 * saga event schema exchanged over the message bus, and the audit payload
 * embedded in every outbox event.
 *
 * @notes
 * - OutboxEvent rows are created in the same database transaction as the
 *   business mutation they describe and are mutated only by the relay.
 * - The correlation id doubles as the bus ordering key so that all events of
 *   one transaction are delivered in creation order.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutboxStatus is the publication state of an outbox event.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// Outbox event types emitted by the orchestrators.
const (
	EventPaymentCreated             = "PAYMENT_CREATED"
	EventPaymentRejected            = "PAYMENT_REJECTED"
	EventPaymentFraudSuspected      = "PAYMENT_FRAUD_SUSPECTED"
	EventPaymentPendingManualReview = "PAYMENT_PENDING_MANUAL_REVIEW"
	EventPaymentValidated           = "PAYMENT_VALIDATED"
	EventPaymentCompleted           = "PAYMENT_COMPLETED"
	EventPaymentFailed              = "PAYMENT_FAILED"
	EventCompensationStarted        = "COMPENSATION_STARTED"
	EventCompensationCompleted      = "COMPENSATION_COMPLETED"
)

// OutboxEvent is one domain event awaiting publication to the message bus.
type OutboxEvent struct {
	ID            int64        `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     string       `json:"event_type"`
	Payload       []byte       `json:"payload"`
	CorrelationID string       `json:"correlation_id"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	CreatedAt     time.Time    `json:"created_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
	LastError     *string      `json:"last_error,omitempty"`
}

// AuditPayload is the JSON body carried by every outbox event.
type AuditPayload struct {
	CorrelationID   string          `json:"correlation_id"`
	EventType       string          `json:"event_type"`
	AggregateID     string          `json:"aggregate_id"`
	SourceAccountID uuid.UUID       `json:"source_account_id"`
	DestinationIBAN string          `json:"destination_iban"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransferType    TransferType    `json:"transfer_type"`
	Status          string          `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Saga event types carried on the internal bus.
const (
	SagaTransactionCreated   = "TRANSACTION_CREATED"
	SagaFundsDebited         = "FUNDS_DEBITED"
	SagaSettlementSent       = "SETTLEMENT_SENT"
	SagaSettlementFailed     = "SETTLEMENT_FAILED"
	SagaCompensationStarted  = "COMPENSATION_STARTED"
	SagaTransactionCompleted = "TRANSACTION_COMPLETED"
	SagaTransactionRejected  = "TRANSACTION_REJECTED"
)

// SagaEvent is the message exchanged on the saga bus to advance a transfer
// asynchronously when the settlement leg confirms or fails out of band.
type SagaEvent struct {
	SagaID        uuid.UUID       `json:"saga_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	EventType     string          `json:"event_type"`
	TransferType  TransferType    `json:"transfer_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}
