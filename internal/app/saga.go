/**
 * @description
 * Saga orchestrator for the funds-movement legs of a transfer. It owns the
 * debit, settlement and compensation steps and depends only downward, on the
 * store and the external service clients, never on the payment orchestrator.
 *
 * @notes
 * - Every status transition is conditional on the prior status, so a given
 *   step can only be won once no matter how many times a signal is delivered.
 * - Compensation is claimed by the VALIDATED to REJECTED transition before the
 *   credit is issued. A duplicate failure signal loses that transition and
 *   never reaches the credit call.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/store"
	"github.com/ebanking/payment-service/pkg/accountclient"
	"github.com/ebanking/payment-service/pkg/legacyclient"
)

// AccountClient is the slice of the account service the saga needs.
type AccountClient interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (*accountclient.Balance, error)
	Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency string, transactionID uuid.UUID) error
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency string, transactionID uuid.UUID) error
}

// SettlementClient is the slice of the legacy adapter the saga needs.
type SettlementClient interface {
	SendPayment(ctx context.Context, request legacyclient.SettlementRequest) (*legacyclient.SettlementResponse, error)
}

// SagaOrchestrator drives a transfer through its funds-movement steps and
// unwinds them when a later step fails.
type SagaOrchestrator struct {
	repo       store.Repository
	accounts   AccountClient
	settlement SettlementClient
}

// NewSagaOrchestrator creates a saga orchestrator.
func NewSagaOrchestrator(repo store.Repository, accounts AccountClient, settlement SettlementClient) *SagaOrchestrator {
	return &SagaOrchestrator{repo: repo, accounts: accounts, settlement: settlement}
}

// ProcessInstant runs the synchronous saga for an instant transfer:
// balance check, debit, settlement, then completion or compensation.
func (s *SagaOrchestrator) ProcessInstant(ctx context.Context, txn *domain.Transaction) (*domain.PaymentResponse, error) {
	// 1. Balance check. A shortfall or an unreachable account service rejects
	// the transfer before any side effect exists, so there is nothing to undo.
	balance, err := s.accounts.GetBalance(ctx, txn.SourceAccountID)
	if err != nil {
		return s.rejectBeforeDebit(ctx, txn, "Transaction rejected: account service is unavailable, please retry later")
	}
	if balance.Available.LessThan(txn.Amount) {
		return s.rejectBeforeDebit(ctx, txn, "Transaction rejected: insufficient funds")
	}

	// 2. Debit, the one undoable side effect of the saga.
	if err := s.accounts.Debit(ctx, txn.SourceAccountID, txn.Amount, txn.Currency, txn.ID); err != nil {
		if errors.Is(err, accountclient.ErrInsufficientFunds) {
			return s.rejectBeforeDebit(ctx, txn, "Transaction rejected: insufficient funds")
		}
		return s.rejectBeforeDebit(ctx, txn, "Transaction rejected: debit could not be performed")
	}

	// 3. Claim the settlement step. Losing this transition means another actor
	// already moved the transaction, which should not happen mid-saga.
	claimed, err := s.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
		[]domain.TransactionStatus{domain.StatusPending}, domain.StatusValidated,
		outboxEventFor(txn, domain.SagaFundsDebited, string(domain.StatusValidated), ""),
		outboxEventFor(txn, domain.SagaSettlementSent, string(domain.StatusValidated), ""),
	)
	if err != nil {
		return nil, fmt.Errorf("claim settlement step: %w", err)
	}
	if !claimed {
		log.Printf("CRITICAL: transaction %s was moved out of PENDING mid-saga after a debit; manual reconciliation required", txn.ID)
		return nil, fmt.Errorf("transaction %s no longer pending after debit", txn.ID)
	}

	// 4. Settlement through the legacy adapter. A timeout is a failure.
	response, err := s.settlement.SendPayment(ctx, legacyclient.SettlementRequest{
		TransactionID:   txn.ID,
		SourceAccountID: txn.SourceAccountID,
		DestinationIBAN: txn.DestinationIBAN,
		Amount:          txn.Amount,
		Currency:        txn.Currency,
	})
	if err != nil || !response.Success {
		reason := "settlement refused by the legacy system"
		if err != nil {
			reason = err.Error()
		} else if response.Message != "" {
			reason = response.Message
		}
		if compErr := s.Compensate(ctx, txn, reason); compErr != nil {
			return nil, compErr
		}
		return &domain.PaymentResponse{
			TransactionID: txn.ID,
			Status:        domain.StatusRejected,
			Message:       fmt.Sprintf("Transaction rejected: %s, funds returned to the account", reason),
			CreatedAt:     txn.CreatedAt,
		}, nil
	}

	// 5. Completion.
	if _, err := s.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
		[]domain.TransactionStatus{domain.StatusValidated}, domain.StatusCompleted,
		outboxEventFor(txn, domain.EventPaymentCompleted, string(domain.StatusCompleted), ""),
	); err != nil {
		return nil, fmt.Errorf("complete transaction: %w", err)
	}

	return &domain.PaymentResponse{
		TransactionID: txn.ID,
		Status:        domain.StatusCompleted,
		Message:       "Transaction settled",
		CreatedAt:     txn.CreatedAt,
	}, nil
}

// ProcessStandard validates a standard transfer and hands it to the deferred
// settlement flow. No funds move here; the confirmation arrives later on the
// saga queue.
func (s *SagaOrchestrator) ProcessStandard(ctx context.Context, txn *domain.Transaction) (*domain.PaymentResponse, error) {
	claimed, err := s.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
		[]domain.TransactionStatus{domain.StatusPending}, domain.StatusValidated,
		outboxEventFor(txn, domain.EventPaymentValidated, string(domain.StatusValidated), ""),
		outboxEventFor(txn, domain.SagaSettlementSent, string(domain.StatusValidated), ""),
	)
	if err != nil {
		return nil, fmt.Errorf("validate transaction: %w", err)
	}
	if !claimed {
		log.Printf("WARN: transaction %s already moved out of PENDING; skipping validation", txn.ID)
	}

	return &domain.PaymentResponse{
		TransactionID: txn.ID,
		Status:        domain.StatusValidated,
		Message:       "Transaction accepted for settlement",
		CreatedAt:     txn.CreatedAt,
	}, nil
}

// Compensate unwinds the debit of an instant transfer. The conditional
// VALIDATED to REJECTED transition claims the compensation: whichever caller
// wins it issues the credit, every other caller is a no-op.
func (s *SagaOrchestrator) Compensate(ctx context.Context, txn *domain.Transaction, reason string) error {
	claimed, err := s.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
		[]domain.TransactionStatus{domain.StatusValidated}, domain.StatusRejected,
		outboxEventFor(txn, domain.EventCompensationStarted, string(domain.StatusRejected), reason),
		outboxEventFor(txn, domain.EventPaymentRejected, string(domain.StatusRejected), reason),
	)
	if err != nil {
		return fmt.Errorf("claim compensation: %w", err)
	}
	if !claimed {
		log.Printf("WARN: compensation for transaction %s already handled; skipping credit", txn.ID)
		return nil
	}

	if err := s.accounts.Credit(ctx, txn.SourceAccountID, txn.Amount, txn.Currency, txn.ID); err != nil {
		log.Printf("CRITICAL: compensation credit failed for transaction %s amount %s %s: %v; manual reconciliation required",
			txn.ID, txn.Amount.StringFixed(2), txn.Currency, err)
		return fmt.Errorf("compensation credit for transaction %s: %w", txn.ID, err)
	}

	if err := s.repo.EnqueueOutboxEvents(ctx, outboxEventFor(txn, domain.EventCompensationCompleted, string(domain.StatusRejected), reason)); err != nil {
		log.Printf("WARN: failed to record compensation completion for transaction %s: %v", txn.ID, err)
	}
	return nil
}

// rejectBeforeDebit marks a transfer rejected while no side effect exists yet.
func (s *SagaOrchestrator) rejectBeforeDebit(ctx context.Context, txn *domain.Transaction, message string) (*domain.PaymentResponse, error) {
	if _, err := s.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
		[]domain.TransactionStatus{domain.StatusPending}, domain.StatusRejected,
		outboxEventFor(txn, domain.EventPaymentRejected, string(domain.StatusRejected), message),
	); err != nil {
		return nil, fmt.Errorf("reject transaction: %w", err)
	}
	return &domain.PaymentResponse{
		TransactionID: txn.ID,
		Status:        domain.StatusRejected,
		Message:       message,
		CreatedAt:     txn.CreatedAt,
	}, nil
}

// outboxEventFor builds the audit event enqueued alongside a status mutation.
// The transaction id doubles as the correlation id so that every event of one
// transfer shares an ordering key on the bus.
func outboxEventFor(txn *domain.Transaction, eventType, status, errorMessage string) store.OutboxInsert {
	return store.OutboxInsert{
		AggregateType: "transaction",
		AggregateID:   txn.ID.String(),
		EventType:     eventType,
		CorrelationID: txn.ID.String(),
		Payload: domain.AuditPayload{
			CorrelationID:   txn.ID.String(),
			EventType:       eventType,
			AggregateID:     txn.ID.String(),
			SourceAccountID: txn.SourceAccountID,
			DestinationIBAN: txn.DestinationIBAN,
			Amount:          txn.Amount,
			Currency:        txn.Currency,
			TransferType:    txn.Type,
			Status:          status,
			ErrorMessage:    errorMessage,
			Timestamp:       time.Now().UTC(),
		},
	}
}
