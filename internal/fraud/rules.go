/**
 * @description
 * Hard sequential fraud rules. Each rule can short-circuit to a terminal
 * decision; ties are resolved by rule order, not by score. This path gates
 * STANDARD transfers.
 *
 * @notes
 * - All ceilings are exclusive upper bounds: a cumulative total exactly equal
 *   to a ceiling is accepted.
 * - Every monetary comparison goes through shopspring/decimal.
 */

package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
)

// History is the slice of the transaction store the evaluator reads.
type History interface {
	CountBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error)
	CountActiveBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, since time.Time) (int64, error)
	SumSettledBySourceSince(ctx context.Context, sourceAccountID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error)
	HasTransferToDestination(ctx context.Context, sourceAccountID uuid.UUID, destinationIBAN string) (bool, error)
}

// ReferenceData exposes the externally managed blacklist and limits stores.
type ReferenceData interface {
	FindAccountLimit(ctx context.Context, accountID uuid.UUID, currency string) (*domain.AccountLimit, error)
	IsIBANBlacklisted(ctx context.Context, iban string) (bool, error)
}

// Decision is the outcome of a fraud evaluation. Fraud-policy outcomes are
// first-class states, not errors.
type Decision struct {
	Status       domain.TransactionStatus
	RiskScore    int
	ViolatedRule *string
	Message      string
}

// RuleConfig holds the hard-rule thresholds. Location anchors the start of
// the daily window to the bank's local day; nil means UTC.
type RuleConfig struct {
	AmountCeiling           decimal.Decimal
	MaxTransfersInWindow    int64
	VelocityWindow          time.Duration
	DailyCumulativeCeiling  decimal.Decimal
	NewBeneficiaryThreshold decimal.Decimal
	Location                *time.Location
}

func (c RuleConfig) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

// DefaultRuleConfig returns the production thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		AmountCeiling:           decimal.NewFromInt(10000),
		MaxTransfersInWindow:    3,
		VelocityWindow:          10 * time.Minute,
		DailyCumulativeCeiling:  decimal.NewFromInt(15000),
		NewBeneficiaryThreshold: decimal.NewFromInt(2000),
		Location:                time.UTC,
	}
}

// RuleEngine evaluates the ordered hard rules against a payment request.
type RuleEngine struct {
	history History
	config  RuleConfig
	now     func() time.Time
}

// NewRuleEngine creates a rule engine over the given history store.
func NewRuleEngine(history History, config RuleConfig) *RuleEngine {
	return &RuleEngine{history: history, config: config, now: time.Now}
}

// Evaluate runs the hard rules in their fixed order and returns the first
// terminal decision, or an accepting PENDING decision when no rule fires.
func (e *RuleEngine) Evaluate(ctx context.Context, req domain.PaymentRequest) (Decision, error) {
	// Rule 1: absolute amount ceiling.
	if req.Amount.GreaterThan(e.config.AmountCeiling) {
		rule := "AMOUNT_CEILING_EXCEEDED"
		return Decision{
			Status:       domain.StatusRejected,
			RiskScore:    100,
			ViolatedRule: &rule,
			Message: fmt.Sprintf("Transaction rejected: amount %s exceeds the authorized ceiling of %s",
				req.Amount.StringFixed(2), e.config.AmountCeiling.StringFixed(2)),
		}, nil
	}

	// Rule 2: too many transfers from the same source in the trailing window.
	windowStart := e.now().Add(-e.config.VelocityWindow)
	recentCount, err := e.history.CountBySourceSince(ctx, req.SourceAccountID, windowStart)
	if err != nil {
		return Decision{}, fmt.Errorf("count recent transfers: %w", err)
	}
	if recentCount >= e.config.MaxTransfersInWindow {
		rule := "VELOCITY_THRESHOLD_EXCEEDED"
		return Decision{
			Status:       domain.StatusRejected,
			RiskScore:    90,
			ViolatedRule: &rule,
			Message: fmt.Sprintf("Transaction rejected: too many recent transfers (%d in the last %d minutes, maximum allowed: %d)",
				recentCount, int(e.config.VelocityWindow.Minutes()), e.config.MaxTransfersInWindow),
		}, nil
	}

	// Rule 3: daily cumulative ceiling over validated/completed transfers.
	startOfDay := startOfDay(e.now(), e.config.location())
	dailyTotal, err := e.history.SumSettledBySourceSince(ctx, req.SourceAccountID, req.Currency, startOfDay)
	if err != nil {
		return Decision{}, fmt.Errorf("sum daily transfers: %w", err)
	}
	newTotal := dailyTotal.Add(req.Amount)
	if newTotal.GreaterThan(e.config.DailyCumulativeCeiling) {
		rule := "DAILY_CUMULATIVE_CEILING_EXCEEDED"
		return Decision{
			Status:       domain.StatusRejected,
			RiskScore:    80,
			ViolatedRule: &rule,
			Message: fmt.Sprintf("Transaction rejected: daily cumulative ceiling exceeded (%s + %s = %s > %s)",
				dailyTotal.StringFixed(2), req.Amount.StringFixed(2), newTotal.StringFixed(2), e.config.DailyCumulativeCeiling.StringFixed(2)),
		}, nil
	}

	// Rule 4: never-seen beneficiary above the manual-review threshold.
	seen, err := e.history.HasTransferToDestination(ctx, req.SourceAccountID, req.DestinationIBAN)
	if err != nil {
		return Decision{}, fmt.Errorf("check beneficiary history: %w", err)
	}
	if !seen && req.Amount.GreaterThan(e.config.NewBeneficiaryThreshold) {
		rule := "NEW_BENEFICIARY_THRESHOLD_EXCEEDED"
		return Decision{
			Status:       domain.StatusPendingManualReview,
			RiskScore:    50,
			ViolatedRule: &rule,
			Message: fmt.Sprintf("Transaction pending manual review: first transfer to this beneficiary above %s (%s)",
				e.config.NewBeneficiaryThreshold.StringFixed(2), req.Amount.StringFixed(2)),
		}, nil
	}

	return Decision{
		Status:  domain.StatusPending,
		Message: "Transaction accepted",
	}, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	year, month, _ := t.In(loc).Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}
