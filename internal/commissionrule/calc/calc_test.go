package calc

import (
	"testing"

	"github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestMarginCommission_Basic(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeMarginPercentage, Rate: 10}

	result, err := MarginCommission(rule, Input{Revenue: 1000, Cost: floatPtr(600)})
	require.NoError(t, err)

	require.NotNil(t, result.Margin)
	require.NotNil(t, result.MarginPercentage)
	assert.Equal(t, 400.0, *result.Margin)
	assert.Equal(t, 40.0, *result.MarginPercentage)
	assert.Equal(t, 10.0, result.CommissionRate)
	assert.Equal(t, 40.0, result.CommissionAmount)
	assert.False(t, result.Gated)
}

func TestMarginCommission_MissingCost(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeMarginPercentage, Rate: 10}

	_, err := MarginCommission(rule, Input{Revenue: 1000})
	assert.ErrorIs(t, err, ErrCostRequired)
}

func TestMarginCommission_ZeroRevenue(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeMarginPercentage, Rate: 10}

	result, err := MarginCommission(rule, Input{Revenue: 0, Cost: floatPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, *result.MarginPercentage)
	assert.Equal(t, 0.0, result.CommissionAmount)
}

func TestMarginCommission_NegativeMarginNeverNegative(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeMarginPercentage, Rate: 10}

	// Cost above revenue: margin is negative but the commission clamps to zero.
	result, err := MarginCommission(rule, Input{Revenue: 500, Cost: floatPtr(800)})
	require.NoError(t, err)
	assert.Equal(t, -300.0, *result.Margin)
	assert.Equal(t, 0.0, result.CommissionAmount)
	assert.GreaterOrEqual(t, result.CommissionAmount, 0.0)
}

func TestMarginCommission_GateOrder(t *testing.T) {
	rule := domain.CommissionRule{
		RuleType:            domain.RuleTypeMarginPercentage,
		Rate:                10,
		MinMarginPercentage: floatPtr(50),
		MinOrderValue:       floatPtr(2000),
	}

	// Margin gate fires first even though the order-value gate would also fail.
	result, err := MarginCommission(rule, Input{Revenue: 1000, Cost: floatPtr(600)})
	require.NoError(t, err)
	assert.True(t, result.Gated)
	assert.Equal(t, GateMinMarginPercentage, result.GateReason)
	assert.Equal(t, 0.0, result.CommissionRate)
	assert.Equal(t, 0.0, result.CommissionAmount)
	// Margin figures survive gating.
	assert.Equal(t, 400.0, *result.Margin)
	assert.Equal(t, 40.0, *result.MarginPercentage)
}

func TestMarginCommission_MinCommissionGate(t *testing.T) {
	rule := domain.CommissionRule{
		RuleType:            domain.RuleTypeMarginPercentage,
		Rate:                10,
		MinCommissionAmount: floatPtr(100),
	}

	result, err := MarginCommission(rule, Input{Revenue: 1000, Cost: floatPtr(600)})
	require.NoError(t, err)
	assert.True(t, result.Gated)
	assert.Equal(t, GateMinCommissionAmount, result.GateReason)
	assert.Equal(t, 0.0, result.CommissionAmount)
}

func TestRevenueCommission_Basic(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeRevenuePercentage, Rate: 5}

	result, err := RevenueCommission(rule, Input{Revenue: 2000})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.CommissionRate)
	assert.Equal(t, 100.0, result.CommissionAmount)
}

func TestRevenueCommission_MinOrderValueGate(t *testing.T) {
	rule := domain.CommissionRule{
		RuleType:      domain.RuleTypeRevenuePercentage,
		Rate:          5,
		MinOrderValue: floatPtr(2000),
	}

	result, err := RevenueCommission(rule, Input{Revenue: 1000})
	require.NoError(t, err)
	assert.True(t, result.Gated)
	assert.Equal(t, GateMinOrderValue, result.GateReason)
	assert.Equal(t, 0.0, result.CommissionAmount)
}

func TestFixedCommission(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeFixedAmount, Rate: 250}

	result, err := FixedCommission(rule, Input{Revenue: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 250.0, result.CommissionAmount)

	rule.MinOrderValue = floatPtr(50_000)
	result, err = FixedCommission(rule, Input{Revenue: 10_000})
	require.NoError(t, err)
	assert.True(t, result.Gated)
	assert.Equal(t, 0.0, result.CommissionAmount)
}

func tieredRule(tiers ...domain.CommissionTier) domain.CommissionRule {
	return domain.CommissionRule{RuleType: domain.RuleTypeTiered, Tiers: tiers}
}

func TestTieredCommission_SelectsSecondTier(t *testing.T) {
	rule := tieredRule(
		domain.CommissionTier{MinAmount: 0, MaxAmount: floatPtr(999), Rate: 5},
		domain.CommissionTier{MinAmount: 1000, Rate: 8},
	)

	result, err := TieredCommission(rule, Input{Revenue: 1500})
	require.NoError(t, err)
	require.NotNil(t, result.AppliedTier)
	assert.Equal(t, 8.0, result.AppliedTier.Rate)
	assert.Equal(t, 120.0, result.CommissionAmount)
}

func TestTieredCommission_MarginBaseWhenCostPresent(t *testing.T) {
	rule := tieredRule(
		domain.CommissionTier{MinAmount: 0, MaxAmount: floatPtr(999), Rate: 5},
		domain.CommissionTier{MinAmount: 1000, Rate: 8},
	)

	// Base amount is revenue minus cost, landing in the first tier.
	result, err := TieredCommission(rule, Input{Revenue: 1500, Cost: floatPtr(900)})
	require.NoError(t, err)
	assert.Equal(t, 600.0, result.BaseAmount)
	require.NotNil(t, result.AppliedTier)
	assert.Equal(t, 5.0, result.AppliedTier.Rate)
	assert.Equal(t, 30.0, result.CommissionAmount)
}

func TestTieredCommission_NoMatchingTier(t *testing.T) {
	rule := tieredRule(
		domain.CommissionTier{MinAmount: 1000, Rate: 8},
	)

	result, err := TieredCommission(rule, Input{Revenue: 500})
	require.NoError(t, err)
	assert.Nil(t, result.AppliedTier)
	assert.Equal(t, 0.0, result.CommissionAmount)
}

func TestTieredCommission_ExactlyOneTierMatches(t *testing.T) {
	rule := tieredRule(
		domain.CommissionTier{MinAmount: 0, MaxAmount: floatPtr(999), Rate: 5},
		domain.CommissionTier{MinAmount: 1000, MaxAmount: floatPtr(4999), Rate: 8},
		domain.CommissionTier{MinAmount: 5000, Rate: 10},
	)

	for _, base := range []float64{0, 500, 999, 1000, 4999, 5000, 100_000} {
		matches := 0
		for _, tier := range rule.Tiers {
			if base >= tier.MinAmount && (tier.MaxAmount == nil || base <= *tier.MaxAmount) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "base %v", base)
	}
}

func TestTieredCommission_EmptyTiers(t *testing.T) {
	rule := domain.CommissionRule{RuleType: domain.RuleTypeTiered}

	_, err := TieredCommission(rule, Input{Revenue: 1000})
	assert.ErrorIs(t, err, ErrNoTiers)

	_, err = Apply(rule, Input{Revenue: 1000})
	assert.ErrorIs(t, err, ErrNoTiers)
}

func TestApply_UnsupportedRuleType(t *testing.T) {
	rule := domain.CommissionRule{RuleType: "loyalty_points", Rate: 5}

	_, err := Apply(rule, Input{Revenue: 1000})
	assert.ErrorIs(t, err, ErrUnsupportedRuleType)
}

// Raising min_order_value above the transaction revenue zeroes the
// commission for every rule type.
func TestGating_MonotonicAcrossRuleTypes(t *testing.T) {
	in := Input{Revenue: 1000, Cost: floatPtr(600)}
	gate := floatPtr(1001)

	rules := []domain.CommissionRule{
		{RuleType: domain.RuleTypeMarginPercentage, Rate: 10, MinOrderValue: gate},
		{RuleType: domain.RuleTypeRevenuePercentage, Rate: 5, MinOrderValue: gate},
		{RuleType: domain.RuleTypeFixedAmount, Rate: 250, MinOrderValue: gate},
		{
			RuleType:      domain.RuleTypeTiered,
			MinOrderValue: gate,
			Tiers:         []domain.CommissionTier{{MinAmount: 0, Rate: 5}},
		},
	}

	for _, rule := range rules {
		result, err := Apply(rule, in)
		require.NoError(t, err, "type %s", rule.RuleType)
		assert.True(t, result.Gated, "type %s", rule.RuleType)
		assert.Equal(t, 0.0, result.CommissionAmount, "type %s", rule.RuleType)
		assert.Equal(t, 0.0, result.CommissionRate, "type %s", rule.RuleType)
	}
}
