package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payora/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	RuleType RuleType
	Active   *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *CommissionRule) error
	InsertTiers(ctx context.Context, db *gorm.DB, tiers []CommissionTier) error
	DeleteTiers(ctx context.Context, db *gorm.DB, orgID, ruleID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*CommissionRule, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*CommissionRule, error)
	Update(ctx context.Context, db *gorm.DB, rule *CommissionRule) error
	// CountReferences reports how many commissions link to the rule.
	CountReferences(ctx context.Context, db *gorm.DB, orgID, ruleID snowflake.ID) (int64, error)
}
