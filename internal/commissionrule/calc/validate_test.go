package calc

import (
	"testing"

	"github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_MissingType(t *testing.T) {
	result := Validate(&domain.CommissionRule{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "rule_type is required")
}

func TestValidate_UnknownType(t *testing.T) {
	result := Validate(&domain.CommissionRule{RuleType: "bonus_pool"})
	assert.False(t, result.Valid)
}

func TestValidate_NegativeRate(t *testing.T) {
	result := Validate(&domain.CommissionRule{RuleType: domain.RuleTypeRevenuePercentage, Rate: -5})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "rate must be >= 0")
}

func TestValidate_NegativeThresholds(t *testing.T) {
	bad := -1.0
	result := Validate(&domain.CommissionRule{
		RuleType:            domain.RuleTypeRevenuePercentage,
		Rate:                5,
		MinMarginPercentage: &bad,
		MinOrderValue:       &bad,
		MinCommissionAmount: &bad,
	})
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3)
}

func TestValidate_TieredRequiresTiers(t *testing.T) {
	result := Validate(&domain.CommissionRule{RuleType: domain.RuleTypeTiered})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "tiered rules require at least one tier")
}

func TestValidate_OverlappingTiers(t *testing.T) {
	rule := &domain.CommissionRule{
		RuleType: domain.RuleTypeTiered,
		Tiers: []domain.CommissionTier{
			{MinAmount: 0, MaxAmount: floatPtr(1000), Rate: 5},
			{MinAmount: 500, Rate: 8},
		},
	}

	result := Validate(rule)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "tiers 0 and 1 overlap", result.Errors[0])
}

func TestValidate_OpenEndedTierMustBeLast(t *testing.T) {
	rule := &domain.CommissionRule{
		RuleType: domain.RuleTypeTiered,
		Tiers: []domain.CommissionTier{
			{MinAmount: 0, Rate: 5}, // no max, swallows everything
			{MinAmount: 1000, Rate: 8},
		},
	}

	result := Validate(rule)
	assert.False(t, result.Valid)
}

func TestValidate_SortsTiers(t *testing.T) {
	rule := &domain.CommissionRule{
		RuleType: domain.RuleTypeTiered,
		Tiers: []domain.CommissionTier{
			{MinAmount: 1000, Rate: 8},
			{MinAmount: 0, MaxAmount: floatPtr(999), Rate: 5},
		},
	}

	result := Validate(rule)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 0.0, rule.Tiers[0].MinAmount)
	assert.Equal(t, 1000.0, rule.Tiers[1].MinAmount)
	assert.Equal(t, 0, rule.Tiers[0].Position)
	assert.Equal(t, 1, rule.Tiers[1].Position)
}

func TestValidate_ValidRules(t *testing.T) {
	rules := []domain.CommissionRule{
		{RuleType: domain.RuleTypeMarginPercentage, Rate: 10},
		{RuleType: domain.RuleTypeRevenuePercentage, Rate: 5},
		{RuleType: domain.RuleTypeFixedAmount, Rate: 250},
		{
			RuleType: domain.RuleTypeTiered,
			Tiers: []domain.CommissionTier{
				{MinAmount: 0, MaxAmount: floatPtr(999), Rate: 5},
				{MinAmount: 1000, Rate: 8},
			},
		},
	}

	for _, rule := range rules {
		result := Validate(&rule)
		assert.True(t, result.Valid, "type %s: %v", rule.RuleType, result.Errors)
	}
}
