package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
)

// historyStub satisfies History with canned values. The settled sum is keyed
// on the window start so daily and monthly lookups can differ in one test.
type historyStub struct {
	recentCount     int64
	activeCount     int64
	sums            map[time.Time]decimal.Decimal
	seenBeneficiary bool
}

func (s *historyStub) CountBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error) {
	return s.recentCount, nil
}

func (s *historyStub) CountActiveBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error) {
	return s.activeCount, nil
}

func (s *historyStub) SumSettledBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error) {
	if total, ok := s.sums[since]; ok {
		return total, nil
	}
	return decimal.Zero, nil
}

func (s *historyStub) HasTransferToDestination(ctx context.Context, sourceAccountID uuid.UUID, destinationIBAN string) (bool, error) {
	return s.seenBeneficiary, nil
}

var testClock = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestRuleEngine(history *historyStub) *RuleEngine {
	engine := NewRuleEngine(history, DefaultRuleConfig())
	engine.now = func() time.Time { return testClock }
	return engine
}

func ruleRequest(amount string) domain.PaymentRequest {
	return domain.PaymentRequest{
		SourceAccountID: uuid.New(),
		DestinationIBAN: "FR7630006000011234567890189",
		Amount:          decimal.RequireFromString(amount),
		Currency:        "EUR",
		Type:            domain.TransferStandard,
	}
}

func TestRuleEngine_RejectsAmountAboveCeiling(t *testing.T) {
	engine := newTestRuleEngine(&historyStub{seenBeneficiary: true})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("10000.01"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", decision.Status)
	}
	if decision.ViolatedRule == nil || *decision.ViolatedRule != "AMOUNT_CEILING_EXCEEDED" {
		t.Fatalf("expected AMOUNT_CEILING_EXCEEDED, got %v", decision.ViolatedRule)
	}
}

func TestRuleEngine_AcceptsAmountAtCeiling(t *testing.T) {
	// A ceiling is an exclusive bound: exactly 10000 passes. The amount also
	// exceeds the new-beneficiary threshold, so the beneficiary must be known.
	engine := newTestRuleEngine(&historyStub{seenBeneficiary: true})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("10000"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s (%s)", decision.Status, decision.Message)
	}
}

func TestRuleEngine_RejectsHighVelocity(t *testing.T) {
	engine := newTestRuleEngine(&historyStub{recentCount: 3, seenBeneficiary: true})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("100"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", decision.Status)
	}
	if decision.ViolatedRule == nil || *decision.ViolatedRule != "VELOCITY_THRESHOLD_EXCEEDED" {
		t.Fatalf("expected VELOCITY_THRESHOLD_EXCEEDED, got %v", decision.ViolatedRule)
	}
}

func TestRuleEngine_AcceptsBelowVelocityThreshold(t *testing.T) {
	engine := newTestRuleEngine(&historyStub{recentCount: 2, seenBeneficiary: true})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("100"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", decision.Status)
	}
}

func TestRuleEngine_DailyCumulativeCeilingIsExclusive(t *testing.T) {
	dayStart := startOfDay(testClock, time.UTC)

	// 14000 settled today + 1000 = exactly 15000, which is still allowed.
	engine := newTestRuleEngine(&historyStub{
		sums:            map[time.Time]decimal.Decimal{dayStart: decimal.NewFromInt(14000)},
		seenBeneficiary: true,
	})
	decision, err := engine.Evaluate(context.Background(), ruleRequest("1000"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusPending {
		t.Fatalf("expected PENDING at exact ceiling, got %s (%s)", decision.Status, decision.Message)
	}

	// One cent more crosses the ceiling.
	decision, err = engine.Evaluate(context.Background(), ruleRequest("1000.01"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED above ceiling, got %s", decision.Status)
	}
	if decision.ViolatedRule == nil || *decision.ViolatedRule != "DAILY_CUMULATIVE_CEILING_EXCEEDED" {
		t.Fatalf("expected DAILY_CUMULATIVE_CEILING_EXCEEDED, got %v", decision.ViolatedRule)
	}
}

func TestRuleEngine_DailyWindowFollowsConfiguredLocation(t *testing.T) {
	bank := time.FixedZone("bank", 10*3600)
	config := DefaultRuleConfig()
	config.Location = bank

	// At 12:00 UTC the bank-local day began at 14:00 UTC the previous day, so
	// transfers settled before midnight UTC still count against today's total.
	history := &historyStub{
		sums:            map[time.Time]decimal.Decimal{startOfDay(testClock, bank): decimal.NewFromInt(14500)},
		seenBeneficiary: true,
	}
	engine := NewRuleEngine(history, config)
	engine.now = func() time.Time { return testClock }

	decision, err := engine.Evaluate(context.Background(), ruleRequest("600"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED against the bank-local day total, got %s", decision.Status)
	}
	if decision.ViolatedRule == nil || *decision.ViolatedRule != "DAILY_CUMULATIVE_CEILING_EXCEEDED" {
		t.Fatalf("expected DAILY_CUMULATIVE_CEILING_EXCEEDED, got %v", decision.ViolatedRule)
	}
}

func TestRuleEngine_NewBeneficiaryAboveThresholdNeedsReview(t *testing.T) {
	engine := newTestRuleEngine(&historyStub{seenBeneficiary: false})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("2000.01"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusPendingManualReview {
		t.Fatalf("expected PENDING_MANUAL_REVIEW, got %s", decision.Status)
	}
	if decision.ViolatedRule == nil || *decision.ViolatedRule != "NEW_BENEFICIARY_THRESHOLD_EXCEEDED" {
		t.Fatalf("expected NEW_BENEFICIARY_THRESHOLD_EXCEEDED, got %v", decision.ViolatedRule)
	}
}

func TestRuleEngine_NewBeneficiaryAtThresholdAccepted(t *testing.T) {
	engine := newTestRuleEngine(&historyStub{seenBeneficiary: false})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("2000"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", decision.Status)
	}
}

func TestRuleEngine_KnownBeneficiarySkipsReview(t *testing.T) {
	engine := newTestRuleEngine(&historyStub{seenBeneficiary: true})

	decision, err := engine.Evaluate(context.Background(), ruleRequest("5000"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if decision.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", decision.Status)
	}
}
