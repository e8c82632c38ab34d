/**
 * @description
 * This file defines the core domain models for the payment-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts use shopspring/decimal throughout so that no floating-point rounding
 *   can influence a fraud decision or a compensation credit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transfer.
type TransactionStatus string

const (
	StatusPending             TransactionStatus = "PENDING"
	StatusFraudSuspected      TransactionStatus = "FRAUD_SUSPECTED"
	StatusPendingManualReview TransactionStatus = "PENDING_MANUAL_REVIEW"
	StatusValidated           TransactionStatus = "VALIDATED"
	StatusCompleted           TransactionStatus = "COMPLETED"
	StatusRejected            TransactionStatus = "REJECTED"
)

// TransferType selects the processing path for a transfer.
type TransferType string

const (
	TransferStandard TransferType = "STANDARD"
	TransferInstant  TransferType = "INSTANT"
)

// Transaction represents the central ledger record for a funds-movement request.
// It maps directly to the `transactions` table in the database.
type Transaction struct {
	ID              uuid.UUID         `json:"id"`
	SourceAccountID uuid.UUID         `json:"source_account_id"`
	DestinationIBAN string            `json:"destination_iban"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Type            TransferType      `json:"type"`
	Status          TransactionStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FraudCheck is one risk evaluation attached to a transaction. It is written
// together with the transaction when the strategy-based scoring path runs and
// is never updated afterwards.
type FraudCheck struct {
	ID            uuid.UUID         `json:"id"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	RiskScore     int               `json:"risk_score"` // 0-100, higher is riskier
	ViolatedRule  *string           `json:"violated_rule,omitempty"`
	Decision      TransactionStatus `json:"decision"`
	CreatedAt     time.Time         `json:"created_at"`
}

// AccountLimit holds per-account transfer ceilings for one currency.
// Owned by an external limits system; consulted read-only here.
type AccountLimit struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Currency     string          `json:"currency"`
	DailyLimit   decimal.Decimal `json:"daily_limit"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
}

// BlacklistedIBAN marks a destination identifier barred from receiving funds.
type BlacklistedIBAN struct {
	IBAN      string    `json:"iban"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentRequest is the DTO for incoming transfer API requests.
type PaymentRequest struct {
	SourceAccountID uuid.UUID       `json:"source_account_id"`
	DestinationIBAN string          `json:"destination_iban"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Type            TransferType    `json:"type"`
}

// PaymentResponse is the structured outcome returned to the caller. The caller
// always receives one of these, never a raw fault from a downstream system.
type PaymentResponse struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Message       string            `json:"message"`
	CreatedAt     time.Time         `json:"created_at"`
}
