// Package calc evaluates commission rules against transaction figures. All
// functions are pure: no storage access, no shared state, safe for
// concurrent use.
package calc

import (
	"errors"
	"math"

	"github.com/smallbiznis/payora/internal/commissionrule/domain"
)

var (
	// ErrCostRequired signals a margin_percentage evaluation without a cost figure.
	ErrCostRequired = errors.New("cost_required")
	// ErrNoTiers signals a tiered rule with no tiers configured.
	ErrNoTiers = errors.New("no_tiers_configured")
	// ErrUnsupportedRuleType signals a rule type the evaluator cannot dispatch.
	ErrUnsupportedRuleType = errors.New("unsupported_rule_type")
)

// Gate reasons reported on suppressed results.
const (
	GateMinMarginPercentage = "min_margin_percentage"
	GateMinOrderValue       = "min_order_value"
	GateMinCommissionAmount = "min_commission_amount"
)

// Input carries the transaction figures a rule is applied to.
type Input struct {
	Revenue float64
	Cost    *float64
}

// Result is the evaluation outcome, shared by all rule types. A gated result
// keeps the derived margin figures but reports a zero rate and amount.
type Result struct {
	BaseAmount       float64
	Margin           *float64
	MarginPercentage *float64
	CommissionRate   float64
	CommissionAmount float64
	AppliedTier      *domain.CommissionTier
	Gated            bool
	GateReason       string
}

// Apply dispatches on the rule type. The switch is exhaustive over the known
// types; anything else fails with ErrUnsupportedRuleType rather than
// defaulting to a rate.
func Apply(rule domain.CommissionRule, in Input) (Result, error) {
	switch rule.RuleType {
	case domain.RuleTypeMarginPercentage:
		return MarginCommission(rule, in)
	case domain.RuleTypeRevenuePercentage:
		return RevenueCommission(rule, in)
	case domain.RuleTypeFixedAmount:
		return FixedCommission(rule, in)
	case domain.RuleTypeTiered:
		return TieredCommission(rule, in)
	default:
		return Result{}, ErrUnsupportedRuleType
	}
}

// MarginCommission computes rate percent of the transaction margin. Requires
// a cost figure. A negative margin never produces a negative commission.
func MarginCommission(rule domain.CommissionRule, in Input) (Result, error) {
	if in.Cost == nil {
		return Result{}, ErrCostRequired
	}

	margin := in.Revenue - *in.Cost
	marginPct := 0.0
	if in.Revenue != 0 {
		marginPct = margin / in.Revenue * 100
	}

	amount := clampMoney(margin * rule.Rate / 100)

	result := Result{
		BaseAmount:       in.Revenue,
		Margin:           &margin,
		MarginPercentage: &marginPct,
		CommissionRate:   rule.Rate,
		CommissionAmount: amount,
	}

	// Gates run in order; the first failure suppresses the commission while
	// the derived margin figures stay reported.
	if rule.MinMarginPercentage != nil && marginPct < *rule.MinMarginPercentage {
		return suppress(result, GateMinMarginPercentage), nil
	}
	if rule.MinOrderValue != nil && in.Revenue < *rule.MinOrderValue {
		return suppress(result, GateMinOrderValue), nil
	}
	if rule.MinCommissionAmount != nil && amount < *rule.MinCommissionAmount {
		return suppress(result, GateMinCommissionAmount), nil
	}

	return result, nil
}

// RevenueCommission computes rate percent of revenue.
func RevenueCommission(rule domain.CommissionRule, in Input) (Result, error) {
	amount := clampMoney(in.Revenue * rule.Rate / 100)

	result := Result{
		BaseAmount:       in.Revenue,
		CommissionRate:   rule.Rate,
		CommissionAmount: amount,
	}

	if rule.MinOrderValue != nil && in.Revenue < *rule.MinOrderValue {
		return suppress(result, GateMinOrderValue), nil
	}
	if rule.MinCommissionAmount != nil && amount < *rule.MinCommissionAmount {
		return suppress(result, GateMinCommissionAmount), nil
	}

	return result, nil
}

// FixedCommission pays the configured flat value regardless of revenue,
// unless the order value gate suppresses it.
func FixedCommission(rule domain.CommissionRule, in Input) (Result, error) {
	result := Result{
		BaseAmount:       in.Revenue,
		CommissionRate:   rule.Rate,
		CommissionAmount: clampMoney(rule.Rate),
	}

	if rule.MinOrderValue != nil && in.Revenue < *rule.MinOrderValue {
		return suppress(result, GateMinOrderValue), nil
	}

	return result, nil
}

// TieredCommission rates the base amount (margin when cost is known, revenue
// otherwise) with the first matching tier. Tiers are assumed pre-sorted and
// non-overlapping; Validate enforces that before a rule is persisted.
func TieredCommission(rule domain.CommissionRule, in Input) (Result, error) {
	if len(rule.Tiers) == 0 {
		return Result{}, ErrNoTiers
	}

	base := in.Revenue
	if in.Cost != nil {
		base = in.Revenue - *in.Cost
	}

	result := Result{BaseAmount: base}

	for i := range rule.Tiers {
		tier := rule.Tiers[i]
		if base < tier.MinAmount {
			continue
		}
		if tier.MaxAmount != nil && base > *tier.MaxAmount {
			continue
		}
		result.AppliedTier = &rule.Tiers[i]
		result.CommissionRate = tier.Rate
		result.CommissionAmount = clampMoney(base * tier.Rate / 100)
		break
	}

	if rule.MinOrderValue != nil && in.Revenue < *rule.MinOrderValue {
		return suppress(result, GateMinOrderValue), nil
	}
	if rule.MinCommissionAmount != nil && result.CommissionAmount < *rule.MinCommissionAmount {
		return suppress(result, GateMinCommissionAmount), nil
	}

	return result, nil
}

func suppress(result Result, reason string) Result {
	result.CommissionRate = 0
	result.CommissionAmount = 0
	result.Gated = true
	result.GateReason = reason
	return result
}

func clampMoney(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	return roundMoney(raw)
}

func roundMoney(raw float64) float64 {
	return math.Round(raw*100) / 100
}
