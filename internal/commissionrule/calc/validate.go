package calc

import (
	"fmt"
	"sort"

	"github.com/smallbiznis/payora/internal/commissionrule/domain"
)

// ValidationResult reports structural problems with a rule. Failures are
// data, not errors: Validate never fails.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate performs the structural check run before a rule is trusted.
// Tiers are sorted by MinAmount ascending as a side effect so evaluation can
// rely on first-match-wins.
func Validate(rule *domain.CommissionRule) ValidationResult {
	var errs []string

	if rule.RuleType == "" {
		errs = append(errs, "rule_type is required")
	} else if !rule.RuleType.Known() {
		errs = append(errs, fmt.Sprintf("unsupported rule_type %q", rule.RuleType))
	}

	if rule.RuleType == domain.RuleTypeTiered {
		errs = append(errs, validateTiers(rule.Tiers)...)
	} else if rule.RuleType.Known() {
		if rule.Rate < 0 {
			errs = append(errs, "rate must be >= 0")
		}
	}

	if rule.MinMarginPercentage != nil && *rule.MinMarginPercentage < 0 {
		errs = append(errs, "min_margin_percentage must be >= 0")
	}
	if rule.MinOrderValue != nil && *rule.MinOrderValue < 0 {
		errs = append(errs, "min_order_value must be >= 0")
	}
	if rule.MinCommissionAmount != nil && *rule.MinCommissionAmount < 0 {
		errs = append(errs, "min_commission_amount must be >= 0")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateTiers(tiers []domain.CommissionTier) []string {
	if len(tiers) == 0 {
		return []string{"tiered rules require at least one tier"}
	}

	var errs []string

	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinAmount < tiers[j].MinAmount
	})
	for i := range tiers {
		tiers[i].Position = i
		if tiers[i].Rate < 0 {
			errs = append(errs, fmt.Sprintf("tier %d: rate must be >= 0", i))
		}
		if tiers[i].MaxAmount != nil && *tiers[i].MaxAmount < tiers[i].MinAmount {
			errs = append(errs, fmt.Sprintf("tier %d: max_amount is below min_amount", i))
		}
	}

	// Adjacent ranges must not intersect. An open-ended tier swallows every
	// amount above it, so it can only be the last one.
	for i := 0; i < len(tiers)-1; i++ {
		current := tiers[i]
		next := tiers[i+1]
		if current.MaxAmount == nil || *current.MaxAmount >= next.MinAmount {
			errs = append(errs, fmt.Sprintf("tiers %d and %d overlap", i, i+1))
		}
	}

	return errs
}
