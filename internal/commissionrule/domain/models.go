// Package domain contains persistence models for commission rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RuleType discriminates the computation strategy of a rule.
type RuleType string

const (
	RuleTypeMarginPercentage  RuleType = "margin_percentage"
	RuleTypeRevenuePercentage RuleType = "revenue_percentage"
	RuleTypeFixedAmount       RuleType = "fixed_amount"
	RuleTypeTiered            RuleType = "tiered"
)

// Known reports whether the type is one of the supported strategies.
func (t RuleType) Known() bool {
	switch t {
	case RuleTypeMarginPercentage, RuleTypeRevenuePercentage, RuleTypeFixedAmount, RuleTypeTiered:
		return true
	default:
		return false
	}
}

// CommissionRule is a reusable policy turning transaction figures into a
// commission amount.
type CommissionRule struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID    snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	PublicID string       `json:"public_id" gorm:"type:text;not null;uniqueIndex"`
	Name     string       `json:"name" gorm:"type:text;not null"`
	RuleType RuleType     `json:"rule_type" gorm:"type:text;not null"`

	// Rate is a percentage for margin/revenue rules and a flat value for
	// fixed_amount rules. Unused for tiered rules.
	Rate float64 `json:"rate" gorm:"type:numeric;not null;default:0"`

	MinMarginPercentage *float64 `json:"min_margin_percentage,omitempty" gorm:"type:numeric"`
	MinOrderValue       *float64 `json:"min_order_value,omitempty" gorm:"type:numeric"`
	MinCommissionAmount *float64 `json:"min_commission_amount,omitempty" gorm:"type:numeric"`

	Currency  string            `json:"currency" gorm:"type:char(3);not null;default:'USD'"`
	Active    bool              `json:"active" gorm:"not null;default:true"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Tiers []CommissionTier `json:"tiers,omitempty" gorm:"foreignKey:RuleID"`
}

func (CommissionRule) TableName() string { return "commission_rules" }

// CommissionTier is one contiguous base-amount range within a tiered rule.
// Tiers are stored sorted by MinAmount ascending; Position reflects that
// order and evaluation picks the first matching tier.
type CommissionTier struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	RuleID      snowflake.ID `json:"rule_id" gorm:"column:rule_id;not null;index"`
	Position    int          `json:"position" gorm:"not null;default:0"`
	MinAmount   float64      `json:"min_amount" gorm:"type:numeric;not null"`
	MaxAmount   *float64     `json:"max_amount,omitempty" gorm:"type:numeric"`
	Rate        float64      `json:"rate" gorm:"type:numeric;not null"`
	Description string       `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommissionTier) TableName() string { return "commission_tiers" }
