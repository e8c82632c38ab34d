/**
 * @description
 * Consumer for deferred saga signals arriving on the message bus: settlement
 * confirmations and failures produced out of band by the legacy adapter. The
 * handler returns an acknowledgement decision to the transport; it never
 * panics the delivery loop.
 *
 * @notes
 * - Malformed payloads are acknowledged and dropped so a poison message
 *   cannot wedge the queue.
 * - All transitions are conditional, so replays and duplicates are no-ops.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/store"
)

// Compensator is the compensation entry point of the saga orchestrator.
type Compensator interface {
	Compensate(ctx context.Context, txn *domain.Transaction, reason string) error
}

// SagaEventConsumer applies deferred settlement outcomes to transactions.
type SagaEventConsumer struct {
	repo        store.Repository
	compensator Compensator
	timeout     time.Duration
}

// NewSagaEventConsumer creates a consumer over the repository and the saga's
// compensation step.
func NewSagaEventConsumer(repo store.Repository, compensator Compensator) *SagaEventConsumer {
	return &SagaEventConsumer{repo: repo, compensator: compensator, timeout: 30 * time.Second}
}

// HandleMessage processes one delivery. It returns true when the delivery
// should be acknowledged and false when it should be re-queued.
func (c *SagaEventConsumer) HandleMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var event domain.SagaEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("WARN: dropping malformed saga event: %v", err)
		return true
	}

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("WARN: saga event %s for transaction %s failed: %v", event.EventType, event.TransactionID, err)
		return false
	}
	return true
}

func (c *SagaEventConsumer) processEvent(ctx context.Context, event domain.SagaEvent) error {
	txn, err := c.repo.FindTransactionByID(ctx, event.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			// Signals for transactions this instance never created are dropped.
			log.Printf("WARN: saga event %s references unknown transaction %s; dropping", event.EventType, event.TransactionID)
			return nil
		}
		return err
	}

	switch event.EventType {
	case domain.SagaSettlementSent:
		claimed, err := c.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
			[]domain.TransactionStatus{domain.StatusValidated}, domain.StatusCompleted,
			outboxEventFor(txn, domain.EventPaymentCompleted, string(domain.StatusCompleted), ""),
		)
		if err != nil {
			return err
		}
		if !claimed {
			log.Printf("WARN: settlement confirmation for transaction %s arrived after a terminal status; ignoring", txn.ID)
		}
		return nil

	case domain.SagaSettlementFailed:
		reason := event.ErrorMessage
		if reason == "" {
			reason = "settlement failed"
		}
		if txn.Type == domain.TransferInstant {
			// Funds were debited up front; unwind them.
			return c.compensator.Compensate(ctx, txn, reason)
		}
		claimed, err := c.repo.UpdateTransactionStatusWithEvent(ctx, txn.ID,
			[]domain.TransactionStatus{domain.StatusValidated}, domain.StatusRejected,
			outboxEventFor(txn, domain.EventPaymentRejected, string(domain.StatusRejected), reason),
		)
		if err != nil {
			return err
		}
		if !claimed {
			log.Printf("WARN: settlement failure for transaction %s arrived after a terminal status; ignoring", txn.ID)
		}
		return nil

	default:
		log.Printf("WARN: unknown saga event type %q for transaction %s; dropping", event.EventType, event.TransactionID)
		return nil
	}
}
