package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/fraud"
	"github.com/ebanking/payment-service/internal/store"
	"github.com/ebanking/payment-service/pkg/legacyclient"
)

// serviceRepoStub tracks one transaction and applies conditional status
// transitions the way the real repository does.
type serviceRepoStub struct {
	store.Repository

	created      *domain.Transaction
	createdCheck *domain.FraudCheck
	status       domain.TransactionStatus
	events       []string
	failUpdateTo domain.TransactionStatus
}

func (s *serviceRepoStub) CreateTransactionWithEvent(ctx context.Context, txn *domain.Transaction, check *domain.FraudCheck, events ...store.OutboxInsert) error {
	s.created = txn
	s.createdCheck = check
	s.status = txn.Status
	for _, e := range events {
		s.events = append(s.events, e.EventType)
	}
	return nil
}

func (s *serviceRepoStub) UpdateTransactionStatusWithEvent(ctx context.Context, transactionID uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, events ...store.OutboxInsert) (bool, error) {
	if s.failUpdateTo != "" && to == s.failUpdateTo {
		return false, errors.New("transient database failure")
	}
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

func (s *serviceRepoStub) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.created == nil || s.created.ID != transactionID {
		return nil, store.ErrTransactionNotFound
	}
	txn := *s.created
	txn.Status = s.status
	return &txn, nil
}

type evaluatorStub struct {
	decision fraud.Decision
	scored   bool
	err      error
}

func (s *evaluatorStub) Evaluate(ctx context.Context, req domain.PaymentRequest) (fraud.Decision, bool, error) {
	return s.decision, s.scored, s.err
}

type sagaStub struct {
	instantCalls  int
	standardCalls int
	response      *domain.PaymentResponse
	err           error
}

func (s *sagaStub) ProcessInstant(ctx context.Context, txn *domain.Transaction) (*domain.PaymentResponse, error) {
	s.instantCalls++
	if s.err != nil {
		return nil, s.err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &domain.PaymentResponse{TransactionID: txn.ID, Status: domain.StatusCompleted, Message: "Transaction settled"}, nil
}

func (s *sagaStub) ProcessStandard(ctx context.Context, txn *domain.Transaction) (*domain.PaymentResponse, error) {
	s.standardCalls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.PaymentResponse{TransactionID: txn.ID, Status: domain.StatusValidated, Message: "Transaction accepted for settlement"}, nil
}

func validInstantRequest() domain.PaymentRequest {
	return domain.PaymentRequest{
		SourceAccountID: uuid.New(),
		DestinationIBAN: "FR7630006000011234567890189",
		Amount:          decimal.NewFromInt(100),
		Currency:        "EUR",
		Type:            domain.TransferInstant,
	}
}

func TestInitiatePayment_RejectsMalformedRequestWithoutPersisting(t *testing.T) {
	repo := &serviceRepoStub{}
	saga := &sagaStub{}
	service := NewService(repo, &evaluatorStub{}, saga)

	cases := []func(r *domain.PaymentRequest){
		func(r *domain.PaymentRequest) { r.SourceAccountID = uuid.Nil },
		func(r *domain.PaymentRequest) { r.DestinationIBAN = "not-an-iban" },
		func(r *domain.PaymentRequest) { r.Amount = decimal.NewFromInt(-5) },
		func(r *domain.PaymentRequest) { r.Amount = decimal.Zero },
		func(r *domain.PaymentRequest) { r.Currency = "EURO" },
		func(r *domain.PaymentRequest) { r.Type = "SCHEDULED" },
	}
	for i, mutate := range cases {
		req := validInstantRequest()
		mutate(&req)
		_, err := service.InitiatePayment(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
	if repo.created != nil {
		t.Fatal("did not expect any transaction to be persisted")
	}
	if saga.instantCalls != 0 || saga.standardCalls != 0 {
		t.Fatal("did not expect the saga to run")
	}
}

func TestInitiatePayment_FraudRejectionNeverReachesSaga(t *testing.T) {
	rule := fraud.RuleVelocityExceeded
	repo := &serviceRepoStub{}
	saga := &sagaStub{}
	service := NewService(repo, &evaluatorStub{
		decision: fraud.Decision{
			Status:       domain.StatusRejected,
			RiskScore:    90,
			ViolatedRule: &rule,
			Message:      "Transaction rejected: risk score 90 exceeds the acceptance threshold",
		},
		scored: true,
	}, saga)

	response, err := service.InitiatePayment(context.Background(), validInstantRequest())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if response.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", response.Status)
	}
	if saga.instantCalls != 0 || saga.standardCalls != 0 {
		t.Fatal("fraud rejection must never reach the saga")
	}
	if repo.created == nil || repo.created.Status != domain.StatusRejected {
		t.Fatalf("expected a persisted REJECTED transaction, got %+v", repo.created)
	}
	if repo.createdCheck == nil || repo.createdCheck.RiskScore != 90 {
		t.Fatalf("expected a persisted fraud check with score 90, got %+v", repo.createdCheck)
	}
	if len(repo.events) != 1 || repo.events[0] != domain.EventPaymentRejected {
		t.Fatalf("expected one PAYMENT_REJECTED event, got %v", repo.events)
	}
}

func TestInitiatePayment_ManualReviewOutcomeIsPersistedWithEvent(t *testing.T) {
	rule := "NEW_BENEFICIARY_THRESHOLD_EXCEEDED"
	repo := &serviceRepoStub{}
	saga := &sagaStub{}
	service := NewService(repo, &evaluatorStub{
		decision: fraud.Decision{
			Status:       domain.StatusPendingManualReview,
			RiskScore:    50,
			ViolatedRule: &rule,
			Message:      "Transaction pending manual review",
		},
	}, saga)

	req := validInstantRequest()
	req.Type = domain.TransferStandard

	response, err := service.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if response.Status != domain.StatusPendingManualReview {
		t.Fatalf("expected PENDING_MANUAL_REVIEW, got %s", response.Status)
	}
	if repo.createdCheck != nil {
		t.Fatal("the hard-rule path must not record a fraud check row")
	}
	if len(repo.events) != 1 || repo.events[0] != domain.EventPaymentPendingManualReview {
		t.Fatalf("expected one PAYMENT_PENDING_MANUAL_REVIEW event, got %v", repo.events)
	}
	if saga.standardCalls != 0 {
		t.Fatal("manual review must never reach the saga")
	}
}

func TestInitiatePayment_AcceptedRequestDispatchesByType(t *testing.T) {
	repo := &serviceRepoStub{}
	saga := &sagaStub{}
	service := NewService(repo, &evaluatorStub{decision: fraud.Decision{Status: domain.StatusPending}, scored: true}, saga)

	response, err := service.InitiatePayment(context.Background(), validInstantRequest())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if response.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", response.Status)
	}
	if saga.instantCalls != 1 || saga.standardCalls != 0 {
		t.Fatalf("expected one instant dispatch, got %d/%d", saga.instantCalls, saga.standardCalls)
	}
	if len(repo.events) != 1 || repo.events[0] != domain.EventPaymentCreated {
		t.Fatalf("expected one PAYMENT_CREATED event, got %v", repo.events)
	}

	repo2 := &serviceRepoStub{}
	saga2 := &sagaStub{}
	service2 := NewService(repo2, &evaluatorStub{decision: fraud.Decision{Status: domain.StatusPending}}, saga2)

	req := validInstantRequest()
	req.Type = domain.TransferStandard
	if _, err := service2.InitiatePayment(context.Background(), req); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if saga2.standardCalls != 1 || saga2.instantCalls != 0 {
		t.Fatalf("expected one standard dispatch, got %d/%d", saga2.standardCalls, saga2.instantCalls)
	}
}

func TestInitiatePayment_SagaErrorYieldsStructuredRejection(t *testing.T) {
	repo := &serviceRepoStub{}
	saga := &sagaStub{err: errors.New("broker exploded")}
	service := NewService(repo, &evaluatorStub{decision: fraud.Decision{Status: domain.StatusPending}}, saga)

	response, err := service.InitiatePayment(context.Background(), validInstantRequest())
	if err != nil {
		t.Fatalf("expected a structured response instead of an error, got %v", err)
	}
	if response.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", response.Status)
	}
	if repo.status != domain.StatusRejected {
		t.Fatalf("expected the transaction to be parked in REJECTED, got %s", repo.status)
	}
}

func TestInitiatePayment_SagaErrorAfterValidationIsNotRejected(t *testing.T) {
	// The completion write fails after the debit and a successful settlement.
	// The transaction must stay VALIDATED for the deferred confirmation; a
	// blanket rejection here would strand moved funds without compensation.
	repo := &serviceRepoStub{failUpdateTo: domain.StatusCompleted}
	accounts := &accountClientStub{available: decimal.NewFromInt(1000)}
	settlement := &settlementClientStub{response: &legacyclient.SettlementResponse{Success: true}}
	saga := NewSagaOrchestrator(repo, accounts, settlement)
	service := NewService(repo, &evaluatorStub{decision: fraud.Decision{Status: domain.StatusPending}, scored: true}, saga)

	response, err := service.InitiatePayment(context.Background(), validInstantRequest())
	if err != nil {
		t.Fatalf("expected a structured response, got %v", err)
	}
	if settlement.calls != 1 || accounts.debitCalls != 1 {
		t.Fatalf("expected one debit and one settlement, got %d/%d", accounts.debitCalls, settlement.calls)
	}
	if repo.status != domain.StatusValidated {
		t.Fatalf("expected the transaction to stay VALIDATED, got %s", repo.status)
	}
	if response.Status != domain.StatusValidated {
		t.Fatalf("expected a VALIDATED response, got %s", response.Status)
	}
	if accounts.creditCalls != 0 {
		t.Fatalf("settled funds must not be credited back, got %d credits", accounts.creditCalls)
	}
	for _, e := range repo.events {
		if e == domain.EventPaymentFailed || e == domain.EventPaymentRejected {
			t.Fatalf("did not expect a failure event for a settled transfer, got %v", repo.events)
		}
	}
}

func TestStandardTransfer_CompletesViaDeferredConfirmation(t *testing.T) {
	repo := &serviceRepoStub{}
	accounts := &accountClientStub{}
	saga := NewSagaOrchestrator(repo, accounts, &settlementClientStub{})
	service := NewService(repo, &evaluatorStub{decision: fraud.Decision{Status: domain.StatusPending}}, saga)
	consumer := NewSagaEventConsumer(repo, saga)

	req := validInstantRequest()
	req.Type = domain.TransferStandard

	response, err := service.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if response.Status != domain.StatusValidated {
		t.Fatalf("expected VALIDATED, got %s", response.Status)
	}

	if ack := consumer.HandleMessage(sagaEventBody(t, repo.created, domain.SagaSettlementSent, "")); !ack {
		t.Fatal("expected the confirmation to be acknowledged")
	}
	if repo.status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", repo.status)
	}
	if accounts.debitCalls != 0 || accounts.creditCalls != 0 {
		t.Fatalf("standard transfers move no funds eagerly, got %d debits and %d credits", accounts.debitCalls, accounts.creditCalls)
	}

	want := []string{
		domain.EventPaymentCreated,
		domain.EventPaymentValidated,
		domain.SagaSettlementSent,
		domain.EventPaymentCompleted,
	}
	if len(repo.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, repo.events)
	}
	for i := range want {
		if repo.events[i] != want[i] {
			t.Fatalf("expected events %v in order, got %v", want, repo.events)
		}
	}
}

func TestInitiatePayment_NormalizesIBANAndCurrency(t *testing.T) {
	repo := &serviceRepoStub{}
	service := NewService(repo, &evaluatorStub{decision: fraud.Decision{Status: domain.StatusPending}}, &sagaStub{})

	req := validInstantRequest()
	req.DestinationIBAN = " fr76 3000 6000 0112 3456 7890 189 "
	req.Currency = " eur "

	if _, err := service.InitiatePayment(context.Background(), req); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.created.DestinationIBAN != "FR7630006000011234567890189" {
		t.Fatalf("expected normalized IBAN, got %q", repo.created.DestinationIBAN)
	}
	if repo.created.Currency != "EUR" {
		t.Fatalf("expected normalized currency, got %q", repo.created.Currency)
	}
}
