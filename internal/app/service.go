/**
 * @description
 * Payment orchestrator. It is the single entry point for new transfers: it
 * validates the request shape, runs the fraud evaluation, persists the
 * transaction together with its first outbox event in one database
 * transaction, and dispatches to the saga that matches the transfer type.
 *
 * @notes
 * - Fraud outcomes are terminal statuses persisted before the saga ever runs.
 * - The caller always receives a structured response. Unexpected saga errors
 *   are converted into a REJECTED outcome with an audit event, never leaked.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/fraud"
	"github.com/ebanking/payment-service/internal/store"
)

// ErrInvalidRequest marks request-shape failures. Nothing is persisted for
// these; the API layer maps them to a 400.
var ErrInvalidRequest = errors.New("invalid payment request")

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}$`)

// FraudEvaluator is the decision engine the orchestrator consults before
// letting any funds move.
type FraudEvaluator interface {
	Evaluate(ctx context.Context, req domain.PaymentRequest) (fraud.Decision, bool, error)
}

// SagaProcessor runs the funds-movement legs for an accepted transfer.
type SagaProcessor interface {
	ProcessInstant(ctx context.Context, txn *domain.Transaction) (*domain.PaymentResponse, error)
	ProcessStandard(ctx context.Context, txn *domain.Transaction) (*domain.PaymentResponse, error)
}

// Service orchestrates the lifecycle of incoming payment requests.
type Service struct {
	repo      store.Repository
	evaluator FraudEvaluator
	saga      SagaProcessor
}

// NewService creates the payment orchestrator.
func NewService(repo store.Repository, evaluator FraudEvaluator, saga SagaProcessor) *Service {
	return &Service{repo: repo, evaluator: evaluator, saga: saga}
}

// InitiatePayment processes a transfer request end to end and always returns
// a structured response for well-formed requests.
func (s *Service) InitiatePayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	// 1. Shape validation. Nothing is persisted for a malformed request.
	req.DestinationIBAN = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(req.DestinationIBAN), " ", ""))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// 2. Fraud evaluation. The scored path additionally records a fraud check
	// row next to the transaction.
	decision, scored, err := s.evaluator.Evaluate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fraud evaluation: %w", err)
	}

	txn := &domain.Transaction{
		ID:              uuid.New(),
		SourceAccountID: req.SourceAccountID,
		DestinationIBAN: req.DestinationIBAN,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Type:            req.Type,
		Status:          decision.Status,
	}

	var check *domain.FraudCheck
	if scored {
		check = &domain.FraudCheck{
			ID:            uuid.New(),
			TransactionID: txn.ID,
			RiskScore:     decision.RiskScore,
			ViolatedRule:  decision.ViolatedRule,
			Decision:      decision.Status,
		}
	}

	// 3. Terminal fraud outcomes are persisted with their audit event and
	// never reach the saga.
	if decision.Status != domain.StatusPending {
		event := outboxEventFor(txn, fraudEventType(decision.Status), string(decision.Status), decision.Message)
		if err := s.repo.CreateTransactionWithEvent(ctx, txn, check, event); err != nil {
			return nil, fmt.Errorf("persist fraud outcome: %w", err)
		}
		return &domain.PaymentResponse{
			TransactionID: txn.ID,
			Status:        decision.Status,
			Message:       decision.Message,
			CreatedAt:     txn.CreatedAt,
		}, nil
	}

	// 4. Accepted: persist PENDING with its creation event, then run the saga.
	event := outboxEventFor(txn, domain.EventPaymentCreated, string(domain.StatusPending), "")
	if err := s.repo.CreateTransactionWithEvent(ctx, txn, check, event); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	var response *domain.PaymentResponse
	switch txn.Type {
	case domain.TransferInstant:
		response, err = s.saga.ProcessInstant(ctx, txn)
	case domain.TransferStandard:
		response, err = s.saga.ProcessStandard(ctx, txn)
	default:
		err = fmt.Errorf("unknown transfer type %q", txn.Type)
	}
	if err != nil {
		// The saga failed in an unexpected way. Only a transaction that never
		// left PENDING can be parked in REJECTED here: past VALIDATED, funds
		// may already have moved, so the row stays VALIDATED and the deferred
		// settlement signal resolves it to COMPLETED or compensation.
		log.Printf("WARN: saga failed for transaction %s: %v", txn.ID, err)
		claimed, markErr := s.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
			[]domain.TransactionStatus{domain.StatusPending}, domain.StatusRejected,
			outboxEventFor(txn, domain.EventPaymentFailed, string(domain.StatusRejected), err.Error()),
		)
		if markErr != nil {
			log.Printf("WARN: failed to mark transaction %s rejected after saga error: %v", txn.ID, markErr)
		}
		if claimed {
			return &domain.PaymentResponse{
				TransactionID: txn.ID,
				Status:        domain.StatusRejected,
				Message:       "Transaction rejected: processing failed",
				CreatedAt:     txn.CreatedAt,
			}, nil
		}
		return &domain.PaymentResponse{
			TransactionID: txn.ID,
			Status:        domain.StatusValidated,
			Message:       "Transaction accepted for settlement, confirmation pending",
			CreatedAt:     txn.CreatedAt,
		}, nil
	}
	return response, nil
}

// GetPayment returns the current view of a transaction.
func (s *Service) GetPayment(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, transactionID)
}

func validateRequest(req domain.PaymentRequest) error {
	if req.SourceAccountID == uuid.Nil {
		return fmt.Errorf("%w: source account id is required", ErrInvalidRequest)
	}
	if !ibanPattern.MatchString(req.DestinationIBAN) {
		return fmt.Errorf("%w: destination IBAN is not plausible", ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if len(req.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidRequest)
	}
	if req.Type != domain.TransferStandard && req.Type != domain.TransferInstant {
		return fmt.Errorf("%w: unknown transfer type %q", ErrInvalidRequest, req.Type)
	}
	return nil
}

func fraudEventType(status domain.TransactionStatus) string {
	switch status {
	case domain.StatusFraudSuspected:
		return domain.EventPaymentFraudSuspected
	case domain.StatusPendingManualReview:
		return domain.EventPaymentPendingManualReview
	default:
		return domain.EventPaymentRejected
	}
}
