/**
 * @description
 * Weighted scoring strategies. Each strategy contributes an independent risk
 * score between 0 and 100; the scorer keeps the maximum score and the first
 * violated rule in strategy order. This path gates INSTANT transfers, where a
 * graded risk signal matters more than a hard short-circuit.
 *
 * @notes
 * - A strategy reports a violated rule only when a rule is actually broken.
 *   Proximity scores (approaching a limit, elevated velocity) raise the score
 *   without naming a rule.
 * - A blacklisted destination is an unconditional FRAUD_SUSPECTED outcome.
 */

package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/store"
)

const (
	RuleIBANBlacklisted      = "IBAN_DESTINATION_BLACKLISTED"
	RuleVelocityExceeded     = "VELOCITY_THRESHOLD_EXCEEDED"
	RuleDailyLimitExceeded   = "DAILY_LIMIT_EXCEEDED"
	RuleMonthlyLimitExceeded = "MONTHLY_LIMIT_EXCEEDED"
)

// Score is one strategy's contribution to the combined risk assessment.
type Score struct {
	Value        int
	ViolatedRule string
}

// Strategy scores one independent risk dimension of a payment request.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, req domain.PaymentRequest) (Score, error)
}

// ScorerConfig holds the scoring thresholds. Location anchors the daily and
// monthly limit windows to the bank's local day; nil means UTC.
type ScorerConfig struct {
	RejectScore      int
	VelocityWindow   time.Duration
	VelocityCritical int64
	Location         *time.Location
}

func (c ScorerConfig) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

// DefaultScorerConfig returns the production scoring thresholds.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		RejectScore:      75,
		VelocityWindow:   10 * time.Minute,
		VelocityCritical: 5,
		Location:         time.UTC,
	}
}

// BlacklistStrategy scores 100 when the destination IBAN is actively
// blacklisted and 0 otherwise.
type BlacklistStrategy struct {
	ref ReferenceData
}

func NewBlacklistStrategy(ref ReferenceData) *BlacklistStrategy {
	return &BlacklistStrategy{ref: ref}
}

func (s *BlacklistStrategy) Name() string { return "blacklist" }

func (s *BlacklistStrategy) Evaluate(ctx context.Context, req domain.PaymentRequest) (Score, error) {
	blacklisted, err := s.ref.IsIBANBlacklisted(ctx, req.DestinationIBAN)
	if err != nil {
		return Score{}, fmt.Errorf("blacklist lookup: %w", err)
	}
	if blacklisted {
		return Score{Value: 100, ViolatedRule: RuleIBANBlacklisted}, nil
	}
	return Score{}, nil
}

// VelocityStrategy grades the number of non-rejected transfers from the same
// source in the trailing window. The critical count is a rule violation; the
// counts just below it only raise the score.
type VelocityStrategy struct {
	history History
	config  ScorerConfig
	now     func() time.Time
}

func NewVelocityStrategy(history History, config ScorerConfig) *VelocityStrategy {
	return &VelocityStrategy{history: history, config: config, now: time.Now}
}

func (s *VelocityStrategy) Name() string { return "velocity" }

func (s *VelocityStrategy) Evaluate(ctx context.Context, req domain.PaymentRequest) (Score, error) {
	windowStart := s.now().Add(-s.config.VelocityWindow)
	count, err := s.history.CountActiveBySourceSince(ctx, req.SourceAccountID, windowStart)
	if err != nil {
		return Score{}, fmt.Errorf("velocity lookup: %w", err)
	}

	switch {
	case count >= s.config.VelocityCritical:
		return Score{Value: 90, ViolatedRule: RuleVelocityExceeded}, nil
	case count == s.config.VelocityCritical-1:
		return Score{Value: 50}, nil
	case count == s.config.VelocityCritical-2:
		return Score{Value: 25}, nil
	default:
		return Score{}, nil
	}
}

// LimitStrategy checks the request against the account's daily and monthly
// ceilings. Exceeding a ceiling is a rule violation; consuming more than 90%
// or 70% of the daily ceiling only raises the score. Accounts without
// configured limits score 0.
type LimitStrategy struct {
	ref     ReferenceData
	history History
	config  ScorerConfig
	now     func() time.Time
}

func NewLimitStrategy(ref ReferenceData, history History, config ScorerConfig) *LimitStrategy {
	return &LimitStrategy{ref: ref, history: history, config: config, now: time.Now}
}

func (s *LimitStrategy) Name() string { return "limits" }

func (s *LimitStrategy) Evaluate(ctx context.Context, req domain.PaymentRequest) (Score, error) {
	limit, err := s.ref.FindAccountLimit(ctx, req.SourceAccountID, req.Currency)
	if err != nil {
		if errors.Is(err, store.ErrAccountLimitNotFound) {
			return Score{}, nil
		}
		return Score{}, fmt.Errorf("account limit lookup: %w", err)
	}

	now := s.now()
	dailyTotal, err := s.history.SumSettledBySourceSince(ctx, req.SourceAccountID, req.Currency, startOfDay(now, s.config.location()))
	if err != nil {
		return Score{}, fmt.Errorf("daily usage lookup: %w", err)
	}
	dailyWithRequest := dailyTotal.Add(req.Amount)
	if dailyWithRequest.GreaterThan(limit.DailyLimit) {
		return Score{Value: 80, ViolatedRule: RuleDailyLimitExceeded}, nil
	}

	monthlyTotal, err := s.history.SumSettledBySourceSince(ctx, req.SourceAccountID, req.Currency, startOfMonth(now, s.config.location()))
	if err != nil {
		return Score{}, fmt.Errorf("monthly usage lookup: %w", err)
	}
	if monthlyTotal.Add(req.Amount).GreaterThan(limit.MonthlyLimit) {
		return Score{Value: 75, ViolatedRule: RuleMonthlyLimitExceeded}, nil
	}

	// Proximity to the daily ceiling raises the score without naming a rule.
	if limit.DailyLimit.IsPositive() {
		usage := dailyWithRequest.Div(limit.DailyLimit).Mul(decimal.NewFromInt(100))
		switch {
		case usage.GreaterThan(decimal.NewFromInt(90)):
			return Score{Value: 30}, nil
		case usage.GreaterThan(decimal.NewFromInt(70)):
			return Score{Value: 15}, nil
		}
	}
	return Score{}, nil
}

// Scorer runs the strategies in order and folds their scores into a decision.
type Scorer struct {
	strategies []Strategy
	config     ScorerConfig
}

// NewScorer creates a scorer over the given strategies. Strategy order decides
// which violated rule is reported when several fire at the same time.
func NewScorer(config ScorerConfig, strategies ...Strategy) *Scorer {
	return &Scorer{strategies: strategies, config: config}
}

// Evaluate combines the strategy scores: the decision score is the maximum of
// the individual scores, and the reported rule is the first violation in
// strategy order.
func (s *Scorer) Evaluate(ctx context.Context, req domain.PaymentRequest) (Decision, error) {
	maxScore := 0
	firstRule := ""
	blacklisted := false

	for _, strategy := range s.strategies {
		score, err := strategy.Evaluate(ctx, req)
		if err != nil {
			return Decision{}, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}
		if score.Value > maxScore {
			maxScore = score.Value
		}
		if score.ViolatedRule != "" && firstRule == "" {
			firstRule = score.ViolatedRule
		}
		if score.ViolatedRule == RuleIBANBlacklisted {
			blacklisted = true
		}
	}

	decision := Decision{RiskScore: maxScore}
	if firstRule != "" {
		rule := firstRule
		decision.ViolatedRule = &rule
	}

	switch {
	case blacklisted:
		decision.Status = domain.StatusFraudSuspected
		decision.Message = "Transaction blocked: destination account is blacklisted"
	case maxScore >= s.config.RejectScore:
		decision.Status = domain.StatusRejected
		decision.Message = fmt.Sprintf("Transaction rejected: risk score %d exceeds the acceptance threshold (%s)", maxScore, firstRule)
	default:
		decision.Status = domain.StatusPending
		decision.Message = "Transaction accepted"
	}
	return decision, nil
}
