package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/store"
)

type consumerRepoStub struct {
	store.Repository

	txn    *domain.Transaction
	status domain.TransactionStatus
	events []string
}

func (s *consumerRepoStub) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.txn == nil {
		return nil, store.ErrTransactionNotFound
	}
	return s.txn, nil
}

func (s *consumerRepoStub) UpdateTransactionStatusWithEvent(ctx context.Context, transactionID uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, events ...store.OutboxInsert) (bool, error) {
	for _, f := range from {
		if s.status == f {
			s.status = to
			for _, e := range events {
				s.events = append(s.events, e.EventType)
			}
			return true, nil
		}
	}
	return false, nil
}

type compensatorStub struct {
	calls  int
	reason string
}

func (s *compensatorStub) Compensate(ctx context.Context, txn *domain.Transaction, reason string) error {
	s.calls++
	s.reason = reason
	return nil
}

func validatedTransaction(transferType domain.TransferType) *domain.Transaction {
	return &domain.Transaction{
		ID:              uuid.New(),
		SourceAccountID: uuid.New(),
		DestinationIBAN: "DE89370400440532013000",
		Amount:          decimal.NewFromInt(300),
		Currency:        "EUR",
		Type:            transferType,
		Status:          domain.StatusValidated,
	}
}

func sagaEventBody(t *testing.T, txn *domain.Transaction, eventType, errorMessage string) []byte {
	t.Helper()
	body, err := json.Marshal(domain.SagaEvent{
		SagaID:        uuid.New(),
		TransactionID: txn.ID,
		EventType:     eventType,
		TransferType:  txn.Type,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		ErrorMessage:  errorMessage,
	})
	if err != nil {
		t.Fatalf("marshal saga event: %v", err)
	}
	return body
}

func TestHandleMessage_SettlementConfirmationCompletes(t *testing.T) {
	txn := validatedTransaction(domain.TransferStandard)
	repo := &consumerRepoStub{txn: txn, status: domain.StatusValidated}
	compensator := &compensatorStub{}
	consumer := NewSagaEventConsumer(repo, compensator)

	if ack := consumer.HandleMessage(sagaEventBody(t, txn, domain.SagaSettlementSent, "")); !ack {
		t.Fatal("expected the delivery to be acknowledged")
	}
	if repo.status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", repo.status)
	}
	if compensator.calls != 0 {
		t.Fatal("did not expect a compensation")
	}
}

func TestHandleMessage_SettlementFailureCompensatesInstant(t *testing.T) {
	txn := validatedTransaction(domain.TransferInstant)
	repo := &consumerRepoStub{txn: txn, status: domain.StatusValidated}
	compensator := &compensatorStub{}
	consumer := NewSagaEventConsumer(repo, compensator)

	if ack := consumer.HandleMessage(sagaEventBody(t, txn, domain.SagaSettlementFailed, "core banking refused")); !ack {
		t.Fatal("expected the delivery to be acknowledged")
	}
	if compensator.calls != 1 {
		t.Fatalf("expected one compensation, got %d", compensator.calls)
	}
	if compensator.reason != "core banking refused" {
		t.Fatalf("expected the failure reason to flow through, got %q", compensator.reason)
	}
}

func TestHandleMessage_SettlementFailureRejectsStandard(t *testing.T) {
	txn := validatedTransaction(domain.TransferStandard)
	repo := &consumerRepoStub{txn: txn, status: domain.StatusValidated}
	compensator := &compensatorStub{}
	consumer := NewSagaEventConsumer(repo, compensator)

	if ack := consumer.HandleMessage(sagaEventBody(t, txn, domain.SagaSettlementFailed, "insufficient nostro cover")); !ack {
		t.Fatal("expected the delivery to be acknowledged")
	}
	if repo.status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", repo.status)
	}
	if compensator.calls != 0 {
		t.Fatal("standard transfers have no debit to compensate")
	}
}

func TestHandleMessage_DuplicateConfirmationIsIgnored(t *testing.T) {
	txn := validatedTransaction(domain.TransferStandard)
	repo := &consumerRepoStub{txn: txn, status: domain.StatusCompleted}
	consumer := NewSagaEventConsumer(repo, &compensatorStub{})

	if ack := consumer.HandleMessage(sagaEventBody(t, txn, domain.SagaSettlementSent, "")); !ack {
		t.Fatal("expected the duplicate to be acknowledged and dropped")
	}
	if repo.status != domain.StatusCompleted {
		t.Fatalf("expected the status to stay COMPLETED, got %s", repo.status)
	}
}

func TestHandleMessage_MalformedPayloadIsAcked(t *testing.T) {
	consumer := NewSagaEventConsumer(&consumerRepoStub{}, &compensatorStub{})

	if ack := consumer.HandleMessage([]byte("{not json")); !ack {
		t.Fatal("malformed payloads must be acknowledged, not re-queued")
	}
}

func TestHandleMessage_UnknownEventTypeIsAcked(t *testing.T) {
	txn := validatedTransaction(domain.TransferStandard)
	repo := &consumerRepoStub{txn: txn, status: domain.StatusValidated}
	consumer := NewSagaEventConsumer(repo, &compensatorStub{})

	if ack := consumer.HandleMessage(sagaEventBody(t, txn, "SETTLEMENT_PARTIAL", "")); !ack {
		t.Fatal("unknown event types must be acknowledged and dropped")
	}
	if repo.status != domain.StatusValidated {
		t.Fatalf("expected the status to stay VALIDATED, got %s", repo.status)
	}
}

func TestHandleMessage_UnknownTransactionIsAcked(t *testing.T) {
	consumer := NewSagaEventConsumer(&consumerRepoStub{}, &compensatorStub{})
	txn := validatedTransaction(domain.TransferInstant)

	if ack := consumer.HandleMessage(sagaEventBody(t, txn, domain.SagaSettlementFailed, "late signal")); !ack {
		t.Fatal("signals for unknown transactions must be acknowledged and dropped")
	}
}
