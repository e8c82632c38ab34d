/**
 * @description
 * Fraud evaluator entry point. Routes STANDARD transfers through the hard
 * sequential rules and INSTANT transfers through the weighted scoring
 * strategies, and reports which style produced the decision so that callers
 * can persist a fraud check row for the scored path.
 */

package fraud

import (
	"context"
	"fmt"

	"github.com/ebanking/payment-service/internal/domain"
)

// Evaluator selects the evaluation style for a payment request.
type Evaluator struct {
	rules  *RuleEngine
	scorer *Scorer
}

// NewEvaluator wires the default rule engine and scorer over the given stores.
func NewEvaluator(history History, ref ReferenceData) *Evaluator {
	scorerConfig := DefaultScorerConfig()
	return &Evaluator{
		rules: NewRuleEngine(history, DefaultRuleConfig()),
		scorer: NewScorer(scorerConfig,
			NewBlacklistStrategy(ref),
			NewVelocityStrategy(history, scorerConfig),
			NewLimitStrategy(ref, history, scorerConfig),
		),
	}
}

// NewEvaluatorWith wires an evaluator from pre-built components, used by tests
// and by deployments that override the default thresholds.
func NewEvaluatorWith(rules *RuleEngine, scorer *Scorer) *Evaluator {
	return &Evaluator{rules: rules, scorer: scorer}
}

// Evaluate runs the evaluation style matching the transfer type. The second
// return value reports whether the scored path ran, in which case the caller
// records a fraud check row alongside the transaction.
func (e *Evaluator) Evaluate(ctx context.Context, req domain.PaymentRequest) (Decision, bool, error) {
	switch req.Type {
	case domain.TransferInstant:
		decision, err := e.scorer.Evaluate(ctx, req)
		return decision, true, err
	case domain.TransferStandard:
		decision, err := e.rules.Evaluate(ctx, req)
		return decision, false, err
	default:
		return Decision{}, false, fmt.Errorf("unknown transfer type %q", req.Type)
	}
}
